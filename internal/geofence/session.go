package geofence

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Conn is the outbound side of one client connection. Implementations must
// be comparable (pointer types) because they key the session registry.
type Conn interface {
	Send(msg []byte) error
}

// Session is one connected client's identity and last known position.
type Session struct {
	ID          string
	Role        Role
	Email       string
	ConnectedAt time.Time
	Lat         *float64
	Lon         *float64
	// Extra holds additional location fields reported by the client.
	Extra map[string]json.RawMessage
}

// Location returns the last reported coordinates, if both are known.
func (s *Session) Location() (lat, lon float64, ok bool) {
	if s.Lat == nil || s.Lon == nil {
		return 0, 0, false
	}
	return *s.Lat, *s.Lon, true
}

// MarshalJSON flattens extras next to the fixed fields, the way the admin
// view presents a session record.
func (s Session) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Extra)+6)
	for k, v := range s.Extra {
		out[k] = v
	}
	out["id"] = s.ID
	out["role"] = s.Role
	out["email"] = s.Email
	out["connected_at"] = s.ConnectedAt.Format(time.RFC3339)
	if s.Lat != nil {
		out["lat"] = *s.Lat
	}
	if s.Lon != nil {
		out["lon"] = *s.Lon
	}
	return json.Marshal(out)
}

func (s *Session) clone() Session {
	c := *s
	if s.Lat != nil {
		lat := *s.Lat
		c.Lat = &lat
	}
	if s.Lon != nil {
		lon := *s.Lon
		c.Lon = &lon
	}
	if s.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(s.Extra))
		for k, v := range s.Extra {
			c.Extra[k] = v
		}
	}
	return c
}

// LocationUpdate is a parsed location_update payload.
type LocationUpdate struct {
	Lat   *float64
	Lon   *float64
	Extra map[string]json.RawMessage
}

// Recipient pairs a connection with the role that decides its view.
type Recipient struct {
	Conn Conn
	Role Role
}

// SessionRegistry owns per-connection sessions. Handles route outbound
// messages; session ids identify records.
type SessionRegistry struct {
	handles  map[Conn]string
	sessions map[string]*Session
}

// NewSessionRegistry returns an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		handles:  make(map[Conn]string),
		sessions: make(map[string]*Session),
	}
}

// Register creates an unauthenticated session for conn. Registering the
// same handle twice returns the existing id.
func (r *SessionRegistry) Register(conn Conn) string {
	if id, ok := r.handles[conn]; ok {
		return id
	}
	id := uuid.NewString()
	r.handles[conn] = id
	r.sessions[id] = &Session{ID: id}
	return id
}

// Login sets the session's role and identity. Re-login overwrites.
// An unknown session yields RoleUnauthenticated.
func (r *SessionRegistry) Login(id, email string, isAdmin bool, now time.Time) Role {
	s, ok := r.sessions[id]
	if !ok {
		return RoleUnauthenticated
	}
	s.Role = RoleUser
	if isAdmin {
		s.Role = RoleAdmin
	}
	s.Email = email
	s.ConnectedAt = now
	return s.Role
}

// UpdateLocation merges the update into the session and reports whether the
// session exists.
func (r *SessionRegistry) UpdateLocation(id string, u LocationUpdate) bool {
	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	if u.Lat != nil {
		lat := *u.Lat
		s.Lat = &lat
	}
	if u.Lon != nil {
		lon := *u.Lon
		s.Lon = &lon
	}
	if len(u.Extra) > 0 {
		if s.Extra == nil {
			s.Extra = make(map[string]json.RawMessage, len(u.Extra))
		}
		for k, v := range u.Extra {
			s.Extra[k] = v
		}
	}
	return true
}

// Remove deletes the handle and its session. It returns the removed session
// id and false if the handle was unknown.
func (r *SessionRegistry) Remove(conn Conn) (string, bool) {
	id, ok := r.handles[conn]
	if !ok {
		return "", false
	}
	delete(r.handles, conn)
	delete(r.sessions, id)
	return id, true
}

// IDOf returns the session id bound to conn.
func (r *SessionRegistry) IDOf(conn Conn) (string, bool) {
	id, ok := r.handles[conn]
	return id, ok
}

// RoleOf returns the session's role, RoleUnauthenticated if unknown.
func (r *SessionRegistry) RoleOf(id string) Role {
	if s, ok := r.sessions[id]; ok {
		return s.Role
	}
	return RoleUnauthenticated
}

// Get returns a copy of the session.
func (r *SessionRegistry) Get(id string) (Session, bool) {
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

// Len returns the number of connected sessions, logged in or not.
func (r *SessionRegistry) Len() int {
	return len(r.sessions)
}

// All returns the live session records for recounting.
func (r *SessionRegistry) All() []*Session {
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Authenticated returns copies of every logged-in session keyed by id.
func (r *SessionRegistry) Authenticated() map[string]Session {
	out := make(map[string]Session, len(r.sessions))
	for id, s := range r.sessions {
		if s.Role == RoleUnauthenticated {
			continue
		}
		out[id] = s.clone()
	}
	return out
}

// Recipients lists every connected handle with its current role.
func (r *SessionRegistry) Recipients() []Recipient {
	out := make([]Recipient, 0, len(r.handles))
	for conn, id := range r.handles {
		role := RoleUnauthenticated
		if s, ok := r.sessions[id]; ok {
			role = s.Role
		}
		out = append(out, Recipient{Conn: conn, Role: role})
	}
	return out
}
