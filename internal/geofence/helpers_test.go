package geofence

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/crowdzone/internal/clock"
)

type fakeConn struct {
	mu   sync.Mutex
	msgs [][]byte
	fail bool
}

func (c *fakeConn) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("broken pipe")
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *fakeConn) envelopes(t *testing.T) []Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Envelope, 0, len(c.msgs))
	for _, raw := range c.msgs {
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("outbound message is not JSON: %v", err)
		}
		out = append(out, env)
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.msgs = nil
	c.mu.Unlock()
}

// lastState decodes the most recent state_update into loosely typed maps.
func (c *fakeConn) lastState(t *testing.T) (zones map[string]map[string]any, users map[string]map[string]any) {
	t.Helper()
	envs := c.envelopes(t)
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Type != TypeStateUpdate {
			continue
		}
		var view struct {
			Zones map[string]map[string]any `json:"zones"`
			Users map[string]map[string]any `json:"users"`
		}
		if err := json.Unmarshal(envs[i].Payload, &view); err != nil {
			t.Fatalf("decode state_update: %v", err)
		}
		return view.Zones, view.Users
	}
	t.Fatal("no state_update received")
	return nil, nil
}

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestTracker() *Tracker {
	return NewTracker(Options{
		Auth:  StaticCredentials{Email: "admin@event.com", Password: "admin"},
		Clock: clock.NewFixed(testNow),
	})
}

func mustJSON(t *testing.T, msgType string, payload any) []byte {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	raw, err := json.Marshal(map[string]any{"type": msgType, "payload": json.RawMessage(body)})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return raw
}

func send(t *testing.T, tr *Tracker, conn Conn, msgType string, payload any) Outcome {
	t.Helper()
	outcome, err := tr.HandleMessage(conn, mustJSON(t, msgType, payload))
	if err != nil {
		t.Fatalf("HandleMessage(%s): %v", msgType, err)
	}
	return outcome
}

func connectAdmin(t *testing.T, tr *Tracker) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	tr.Connect(conn)
	send(t, tr, conn, TypeLogin, map[string]string{"email": "admin@event.com", "password": "admin"})
	return conn
}

func connectUser(t *testing.T, tr *Tracker, email string) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	tr.Connect(conn)
	send(t, tr, conn, TypeLogin, map[string]string{"email": email, "password": "x"})
	return conn
}

func onlyZoneID(t *testing.T, tr *Tracker) string {
	t.Helper()
	zones := tr.Zones().List()
	if len(zones) != 1 {
		t.Fatalf("expected exactly 1 zone, got %d", len(zones))
	}
	return zones[0].ID
}

func ptr[T any](v T) *T { return &v }
