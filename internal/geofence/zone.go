package geofence

import (
	"sort"

	"github.com/google/uuid"
)

// Zone is a named circular geofence. Count and IsCrowded are derived by
// Recount and are never set directly.
type Zone struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Radius    float64 `json:"radius"`
	Threshold int     `json:"threshold"`
	Count     int     `json:"count"`
	IsCrowded bool    `json:"is_crowded"`
}

// ZoneAttrs carries admin-supplied zone fields. Nil fields are left
// untouched by Update.
type ZoneAttrs struct {
	Name      *string  `json:"name" yaml:"name"`
	Lat       *float64 `json:"lat" yaml:"lat"`
	Lon       *float64 `json:"lon" yaml:"lon"`
	Radius    *float64 `json:"radius" yaml:"radius"`
	Threshold *int     `json:"threshold" yaml:"threshold"`
}

func (a ZoneAttrs) applyTo(z *Zone) {
	if a.Name != nil {
		z.Name = *a.Name
	}
	if a.Lat != nil {
		z.Lat = *a.Lat
	}
	if a.Lon != nil {
		z.Lon = *a.Lon
	}
	if a.Radius != nil {
		z.Radius = *a.Radius
	}
	if a.Threshold != nil {
		z.Threshold = *a.Threshold
	}
}

// ZoneRegistry owns the set of zones.
type ZoneRegistry struct {
	zones map[string]*Zone
}

// NewZoneRegistry returns an empty registry.
func NewZoneRegistry() *ZoneRegistry {
	return &ZoneRegistry{zones: make(map[string]*Zone)}
}

// Create stores a new zone with a fresh id and zero occupancy.
// Numeric ranges are not validated; admins are trusted.
func (r *ZoneRegistry) Create(attrs ZoneAttrs) string {
	id := uuid.NewString()
	z := &Zone{ID: id}
	attrs.applyTo(z)
	r.zones[id] = z
	return id
}

// Update merges attrs into an existing zone and reports whether it existed.
func (r *ZoneRegistry) Update(id string, attrs ZoneAttrs) bool {
	z, ok := r.zones[id]
	if !ok {
		return false
	}
	attrs.applyTo(z)
	return true
}

// Delete removes a zone and reports whether it existed.
func (r *ZoneRegistry) Delete(id string) bool {
	if _, ok := r.zones[id]; !ok {
		return false
	}
	delete(r.zones, id)
	return true
}

// Get returns a copy of the zone with the given id.
func (r *ZoneRegistry) Get(id string) (Zone, bool) {
	z, ok := r.zones[id]
	if !ok {
		return Zone{}, false
	}
	return *z, true
}

// Len returns the number of zones.
func (r *ZoneRegistry) Len() int {
	return len(r.zones)
}

// Snapshot returns copies of all zones keyed by id.
func (r *ZoneRegistry) Snapshot() map[string]Zone {
	out := make(map[string]Zone, len(r.zones))
	for id, z := range r.zones {
		out[id] = *z
	}
	return out
}

// List returns copies of all zones ordered by id.
func (r *ZoneRegistry) List() []Zone {
	out := make([]Zone, 0, len(r.zones))
	for _, z := range r.zones {
		out = append(out, *z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Recount recomputes every zone's occupancy from scratch. Only user-role
// sessions with a known location are counted.
func (r *ZoneRegistry) Recount(sessions []*Session) {
	for _, z := range r.zones {
		z.Count = 0
	}
	for _, s := range sessions {
		if s.Role != RoleUser {
			continue
		}
		lat, lon, ok := s.Location()
		if !ok {
			continue
		}
		for _, z := range r.zones {
			if IsInside(lat, lon, z) {
				z.Count++
			}
		}
	}
	for _, z := range r.zones {
		z.IsCrowded = z.Count > z.Threshold
	}
}
