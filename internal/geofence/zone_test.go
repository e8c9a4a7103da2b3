package geofence

import (
	"math/rand"
	"testing"
)

func TestZoneRegistryCreateUpdateDelete(t *testing.T) {
	r := NewZoneRegistry()

	id := r.Create(ZoneAttrs{Name: ptr("Stage"), Lat: ptr(1.5), Lon: ptr(2.5), Radius: ptr(50.0), Threshold: ptr(3)})
	if id == "" {
		t.Fatal("Create returned empty id")
	}
	other := r.Create(ZoneAttrs{Name: ptr("Bar")})
	if other == id {
		t.Fatal("Create reused an id")
	}

	z, ok := r.Get(id)
	if !ok {
		t.Fatal("created zone not found")
	}
	if z.Count != 0 || z.IsCrowded {
		t.Errorf("new zone should start empty, got count=%d crowded=%v", z.Count, z.IsCrowded)
	}

	if !r.Update(id, ZoneAttrs{Radius: ptr(75.0)}) {
		t.Fatal("Update of existing zone reported missing")
	}
	z, _ = r.Get(id)
	want := Zone{ID: id, Name: "Stage", Lat: 1.5, Lon: 2.5, Radius: 75, Threshold: 3}
	if z != want {
		t.Errorf("partial update lost fields: got %+v, want %+v", z, want)
	}

	if r.Update("missing", ZoneAttrs{Name: ptr("x")}) {
		t.Error("Update of missing zone should report false")
	}
	if r.Delete("missing") {
		t.Error("Delete of missing zone should report false")
	}
	if !r.Delete(id) {
		t.Error("Delete of existing zone should report true")
	}
	if _, ok := r.Get(id); ok {
		t.Error("deleted zone still present")
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 zone left, got %d", r.Len())
	}
}

func TestRecountCountsOnlyLocatedUsers(t *testing.T) {
	r := NewZoneRegistry()
	id := r.Create(ZoneAttrs{Lat: ptr(0.0), Lon: ptr(0.0), Radius: ptr(100.0), Threshold: ptr(1)})

	sessions := []*Session{
		{Role: RoleUser, Lat: ptr(0.0), Lon: ptr(0.0)},
		{Role: RoleAdmin, Lat: ptr(0.0), Lon: ptr(0.0)},
		{Role: RoleUnauthenticated, Lat: ptr(0.0), Lon: ptr(0.0)},
		{Role: RoleUser},
		{Role: RoleUser, Lat: ptr(0.0)},
		{Role: RoleUser, Lat: ptr(5.0), Lon: ptr(5.0)},
	}
	r.Recount(sessions)

	z, _ := r.Get(id)
	if z.Count != 1 {
		t.Errorf("expected count 1, got %d", z.Count)
	}
	if z.IsCrowded {
		t.Error("1 > 1 is false; zone must not be crowded")
	}
}

func TestRecountMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	r := NewZoneRegistry()
	for i := 0; i < 12; i++ {
		r.Create(ZoneAttrs{
			Lat:       ptr(rng.Float64()*0.02 - 0.01),
			Lon:       ptr(rng.Float64()*0.02 - 0.01),
			Radius:    ptr(rng.Float64() * 800),
			Threshold: ptr(rng.Intn(5)),
		})
	}
	sessions := make([]*Session, 0, 200)
	for i := 0; i < 200; i++ {
		role := RoleUser
		if i%7 == 0 {
			role = RoleAdmin
		}
		sessions = append(sessions, &Session{
			Role: role,
			Lat:  ptr(rng.Float64()*0.02 - 0.01),
			Lon:  ptr(rng.Float64()*0.02 - 0.01),
		})
	}

	r.Recount(sessions)
	first := r.Snapshot()

	for id, z := range first {
		want := 0
		for _, s := range sessions {
			if s.Role == RoleUser && IsInside(*s.Lat, *s.Lon, &z) {
				want++
			}
		}
		if z.Count != want {
			t.Errorf("zone %s: count %d, want %d", id, z.Count, want)
		}
		if z.IsCrowded != (z.Count > z.Threshold) {
			t.Errorf("zone %s: crowded=%v with count %d threshold %d", id, z.IsCrowded, z.Count, z.Threshold)
		}
	}

	r.Recount(sessions)
	for id, z := range r.Snapshot() {
		if first[id] != z {
			t.Errorf("recount is not idempotent for zone %s: %+v then %+v", id, first[id], z)
		}
	}
}
