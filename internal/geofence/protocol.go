package geofence

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound message types.
const (
	TypeLogin          = "login"
	TypeLocationUpdate = "location_update"
	TypePing           = "ping"
	TypeCreateZone     = "create_zone"
	TypeUpdateZone     = "update_zone"
	TypeDeleteZone     = "delete_zone"
)

// Outbound message types.
const (
	TypeLoginSuccess = "login_success"
	TypePong         = "pong"
	TypeStateUpdate  = "state_update"
)

// ErrMalformedMessage is returned for inbound messages that cannot be
// parsed. It is fatal to the sending connection.
var ErrMalformedMessage = errors.New("malformed message")

// reservedSessionKeys cannot be overwritten through a location update.
var reservedSessionKeys = map[string]struct{}{
	"id":           {},
	"role":         {},
	"email":        {},
	"connected_at": {},
}

// Envelope is the wire frame shared by every message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// LoginPayload is the body of a login message. A credential field that is
// missing or not a string is left empty and reported as not ok.
type LoginPayload struct {
	Email      string
	Password   string
	EmailOK    bool
	PasswordOK bool
}

// LoginSuccessPayload answers a login.
type LoginSuccessPayload struct {
	Role Role `json:"role"`
}

// StateView is the body of a state_update. Users is empty for non-admin
// recipients.
type StateView struct {
	Zones map[string]Zone    `json:"zones"`
	Users map[string]Session `json:"users"`
}

// DecodeEnvelope parses one inbound frame. A missing or null payload is
// treated as an empty object.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	trimmed := bytes.TrimSpace(env.Payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		env.Payload = json.RawMessage("{}")
	} else if trimmed[0] != '{' {
		return Envelope{}, fmt.Errorf("%w: payload of %q is not an object", ErrMalformedMessage, env.Type)
	}
	return env, nil
}

func decodePayload(env Envelope, dst any) error {
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformedMessage, env.Type, err)
	}
	return nil
}

func decodeFields(env Envelope) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := decodePayload(env, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// decodeLogin never rejects a well-formed object: wrongly typed credentials
// only lose the chance to match.
func decodeLogin(env Envelope) (LoginPayload, error) {
	fields, err := decodeFields(env)
	if err != nil {
		return LoginPayload{}, err
	}
	var p LoginPayload
	p.Email, p.EmailOK = stringField(fields, "email")
	p.Password, p.PasswordOK = stringField(fields, "password")
	return p, nil
}

// decodeZoneID returns the target of update_zone and delete_zone, or "" when
// the id is missing or not a string.
func decodeZoneID(env Envelope) (string, error) {
	fields, err := decodeFields(env)
	if err != nil {
		return "", err
	}
	id, _ := stringField(fields, "id")
	return id, nil
}

// decodeLocation splits a location payload into coordinates and extra
// fields. Reserved session keys are dropped.
func decodeLocation(env Envelope) (LocationUpdate, error) {
	fields, err := decodeFields(env)
	if err != nil {
		return LocationUpdate{}, err
	}

	var u LocationUpdate
	for key, value := range fields {
		switch key {
		case "lat", "lon":
			if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
				continue
			}
			var f float64
			if err := json.Unmarshal(value, &f); err != nil {
				return LocationUpdate{}, fmt.Errorf("%w: %s is not a number", ErrMalformedMessage, key)
			}
			if key == "lat" {
				u.Lat = &f
			} else {
				u.Lon = &f
			}
		default:
			if _, reserved := reservedSessionKeys[key]; reserved {
				continue
			}
			if u.Extra == nil {
				u.Extra = make(map[string]json.RawMessage)
			}
			u.Extra[key] = value
		}
	}
	return u, nil
}

// Encode builds an outbound frame.
func Encode(msgType string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	return json.Marshal(Envelope{Type: msgType, Payload: body})
}
