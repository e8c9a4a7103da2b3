package geofence

import "fmt"

// Role is a session's privilege level. A session is RoleUnauthenticated
// until its first login.
type Role int

const (
	RoleUnauthenticated Role = iota
	RoleUser
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAdmin:
		return "admin"
	default:
		return "unauthenticated"
	}
}

// MarshalText encodes the role as its wire name.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a wire role name.
func (r *Role) UnmarshalText(text []byte) error {
	switch string(text) {
	case "user":
		*r = RoleUser
	case "admin":
		*r = RoleAdmin
	case "unauthenticated", "":
		*r = RoleUnauthenticated
	default:
		return fmt.Errorf("unknown role %q", text)
	}
	return nil
}

// View selects which state serialization a recipient gets.
type View int

const (
	UserView View = iota
	AdminView
)

// ViewFor maps every role to a view. Only admins see session data.
func ViewFor(r Role) View {
	switch r {
	case RoleAdmin:
		return AdminView
	case RoleUser, RoleUnauthenticated:
		return UserView
	default:
		return UserView
	}
}

// Reason explains why a message was ignored.
type Reason string

const (
	ReasonUnauthorized   Reason = "unauthorized"
	ReasonUnknownZone    Reason = "unknown_zone"
	ReasonUnknownSession Reason = "unknown_session"
	ReasonNotLoggedIn    Reason = "not_logged_in"
	ReasonUnknownType    Reason = "unknown_type"
)

// Outcome is the internal result of handling one message. Ignored outcomes
// never change state and nothing is sent back to the client for them. Only
// an admin update or delete naming a missing zone still broadcasts.
type Outcome struct {
	Applied bool
	Reason  Reason
}

// Applied is the outcome of a message that took effect.
var Applied = Outcome{Applied: true}

// Ignored builds the outcome of a message that was deliberately dropped.
func Ignored(reason Reason) Outcome {
	return Outcome{Reason: reason}
}

func (o Outcome) String() string {
	if o.Applied {
		return "applied"
	}
	return "ignored(" + string(o.Reason) + ")"
}
