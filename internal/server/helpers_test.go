package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/crowdzone/internal/geofence"
)

const testOrigin = "http://localhost:8765"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startTestServer builds a Server, starts its hub and serves its routes
// from an httptest server. Everything is torn down on test cleanup.
func startTestServer(t *testing.T, customize func(cfg *Config)) (*Server, *httptest.Server) {
	t.Helper()
	cfg := DefaultConfig()
	if customize != nil {
		customize(cfg)
	}
	srv, err := New(cfg, Dependencies{Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv.StartHub()
	ts := httptest.NewServer(srv.SetupRoutes())
	t.Cleanup(func() {
		ts.Close()
		if err := srv.Shutdown(); err != nil {
			t.Errorf("hub shutdown: %v", err)
		}
	})
	return srv, ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	header := http.Header{}
	header.Set("Origin", testOrigin)
	conn, resp, err := dialer.Dial(wsURL(ts), header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func writeMsg(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	msg := map[string]any{"type": msgType}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

type wireState struct {
	Zones map[string]geofence.Zone   `json:"zones"`
	Users map[string]map[string]any `json:"users"`
}

// readType reads frames until one of the wanted type arrives.
func readType(t *testing.T, conn *websocket.Conn, msgType string) geofence.Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	if err := conn.SetReadDeadline(deadline); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	for {
		var env geofence.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		if env.Type == msgType {
			return env
		}
	}
}

// readState reads state updates until one satisfies match.
func readState(t *testing.T, conn *websocket.Conn, match func(wireState) bool) wireState {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		env := readType(t, conn, geofence.TypeStateUpdate)
		var state wireState
		if err := json.Unmarshal(env.Payload, &state); err != nil {
			t.Fatalf("decode state: %v", err)
		}
		if match(state) {
			return state
		}
	}
	t.Fatal("no matching state_update before deadline")
	return wireState{}
}

func expectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no message, got %s", data)
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return
	}
	t.Fatalf("unexpected error while waiting for absence of message: %v", err)
}

func login(t *testing.T, conn *websocket.Conn, email, password string) string {
	t.Helper()
	writeMsg(t, conn, geofence.TypeLogin, map[string]string{"email": email, "password": password})
	env := readType(t, conn, geofence.TypeLoginSuccess)
	var p struct {
		Role string `json:"role"`
	}
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode login_success: %v", err)
	}
	readType(t, conn, geofence.TypeStateUpdate)
	return p.Role
}

func anyZone(s wireState) (geofence.Zone, bool) {
	for _, z := range s.Zones {
		return z, true
	}
	return geofence.Zone{}, false
}
