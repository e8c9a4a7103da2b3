package geofence

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSessionRegistryLifecycle(t *testing.T) {
	r := NewSessionRegistry()
	a, b := &fakeConn{}, &fakeConn{}

	idA := r.Register(a)
	idB := r.Register(b)
	if idA == "" || idA == idB {
		t.Fatalf("expected distinct ids, got %q and %q", idA, idB)
	}
	if again := r.Register(a); again != idA {
		t.Errorf("re-register changed id: %q -> %q", idA, again)
	}
	if r.RoleOf(idA) != RoleUnauthenticated {
		t.Errorf("new session role = %v", r.RoleOf(idA))
	}

	if role := r.Login(idA, "a@x.io", false, testNow); role != RoleUser {
		t.Errorf("Login role = %v, want user", role)
	}
	if role := r.Login(idA, "a@x.io", true, testNow.Add(time.Minute)); role != RoleAdmin {
		t.Errorf("re-login role = %v, want admin", role)
	}
	s, _ := r.Get(idA)
	if !s.ConnectedAt.Equal(testNow.Add(time.Minute)) {
		t.Errorf("re-login should overwrite timestamp, got %v", s.ConnectedAt)
	}

	if r.UpdateLocation("missing", LocationUpdate{Lat: ptr(1.0)}) {
		t.Error("UpdateLocation on unknown session should report false")
	}
	r.UpdateLocation(idA, LocationUpdate{Lat: ptr(1.0), Lon: ptr(2.0)})
	r.UpdateLocation(idA, LocationUpdate{Lat: ptr(3.0), Extra: map[string]json.RawMessage{"accuracy": json.RawMessage("5")}})
	s, _ = r.Get(idA)
	lat, lon, ok := s.Location()
	if !ok || lat != 3 || lon != 2 {
		t.Errorf("merged location = (%v, %v, %v), want (3, 2, true)", lat, lon, ok)
	}
	if string(s.Extra["accuracy"]) != "5" {
		t.Errorf("extra field not stored: %v", s.Extra)
	}

	if got := r.Authenticated(); len(got) != 1 {
		t.Errorf("Authenticated() returned %d sessions, want 1", len(got))
	}

	if id, ok := r.Remove(a); !ok || id != idA {
		t.Errorf("Remove = (%q, %v)", id, ok)
	}
	if _, ok := r.Remove(a); ok {
		t.Error("second Remove should be a no-op")
	}
	if _, ok := r.Get(idA); ok {
		t.Error("removed session still present")
	}
	if r.Len() != 1 || len(r.Recipients()) != 1 {
		t.Errorf("expected only session B left, got %d sessions", r.Len())
	}
}

func TestSessionMarshalJSON(t *testing.T) {
	s := Session{
		ID:          "s1",
		Role:        RoleUser,
		Email:       "u@x.io",
		ConnectedAt: testNow,
		Lat:         ptr(1.25),
		Lon:         ptr(-2.5),
		Extra:       map[string]json.RawMessage{"heading": json.RawMessage("90")},
	}
	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]any{
		"id":           "s1",
		"role":         "user",
		"email":        "u@x.io",
		"connected_at": "2026-03-14T09:30:00Z",
		"lat":          1.25,
		"lon":          -2.5,
		"heading":      float64(90),
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}
