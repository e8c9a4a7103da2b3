package geofence

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Tyrowin/crowdzone/internal/clock"
)

// Options configures a Tracker. Zero values fall back to defaults: no
// admin credentials, the system clock, slog.Default and no recorder.
type Options struct {
	Auth     Authenticator
	Clock    clock.Clock
	Logger   *slog.Logger
	Recorder Recorder
}

// Tracker owns all zone and session state. It is not safe for concurrent
// use; callers serialize access (see server.Hub).
type Tracker struct {
	zones    *ZoneRegistry
	sessions *SessionRegistry
	auth     Authenticator
	clock    clock.Clock
	logger   *slog.Logger
	recorder Recorder
}

// NewTracker returns an empty tracker.
func NewTracker(opts Options) *Tracker {
	t := &Tracker{
		zones:    NewZoneRegistry(),
		sessions: NewSessionRegistry(),
		auth:     opts.Auth,
		clock:    opts.Clock,
		logger:   opts.Logger,
		recorder: opts.Recorder,
	}
	if t.auth == nil {
		t.auth = StaticCredentials{}
	}
	if t.clock == nil {
		t.clock = clock.NewSystem()
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	if t.recorder == nil {
		t.recorder = nopRecorder{}
	}
	return t
}

// Zones exposes the zone registry for reads.
func (t *Tracker) Zones() *ZoneRegistry { return t.zones }

// Sessions exposes the session registry for reads.
func (t *Tracker) Sessions() *SessionRegistry { return t.sessions }

// Connect registers a new connection as an unauthenticated session.
// Nothing is broadcast until the session logs in.
func (t *Tracker) Connect(conn Conn) string {
	id := t.sessions.Register(conn)
	t.logger.Info("session connected", "session", id, "sessions", t.sessions.Len())
	t.recordState()
	return id
}

// Disconnect removes the connection's session, then recounts and broadcasts
// so the remaining clients stop seeing it. Unknown handles are a no-op.
func (t *Tracker) Disconnect(conn Conn) {
	id, ok := t.sessions.Remove(conn)
	if !ok {
		return
	}
	t.logger.Info("session disconnected", "session", id, "sessions", t.sessions.Len())
	t.commit()
}

// Release removes the connection's session without broadcasting. Used at
// shutdown, when every remaining recipient is being closed anyway.
func (t *Tracker) Release(conn Conn) {
	if _, ok := t.sessions.Remove(conn); ok {
		t.Recompute()
		t.recordState()
	}
}

// SeedZone creates a zone without broadcasting. Used for startup seeding
// before any client is connected.
func (t *Tracker) SeedZone(attrs ZoneAttrs) string {
	id := t.zones.Create(attrs)
	t.Recompute()
	t.recordState()
	return id
}

// Recompute runs a full crowd recount over the current sessions.
func (t *Tracker) Recompute() {
	t.zones.Recount(t.sessions.All())
}

// HandleMessage decodes and applies one inbound frame from conn. An error
// wrapping ErrMalformedMessage means the connection must be closed.
func (t *Tracker) HandleMessage(conn Conn, raw []byte) (Outcome, error) {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		return Outcome{}, err
	}
	outcome, err := t.dispatch(conn, env)
	if err != nil {
		return Outcome{}, err
	}
	t.recorder.MessageHandled(env.Type, outcome)
	if !outcome.Applied {
		t.logger.Debug("message ignored", "type", env.Type, "reason", outcome.Reason)
	}
	return outcome, nil
}

func (t *Tracker) dispatch(conn Conn, env Envelope) (Outcome, error) {
	id, ok := t.sessions.IDOf(conn)
	if !ok {
		return Ignored(ReasonUnknownSession), nil
	}

	switch env.Type {
	case TypeLogin:
		return t.handleLogin(conn, id, env)
	case TypeLocationUpdate:
		return t.handleLocation(id, env)
	case TypePing:
		t.reply(conn, TypePong, struct{}{})
		return Applied, nil
	case TypeCreateZone, TypeUpdateZone, TypeDeleteZone:
		if t.sessions.RoleOf(id) != RoleAdmin {
			return Ignored(ReasonUnauthorized), nil
		}
		return t.handleZone(env)
	default:
		return Ignored(ReasonUnknownType), nil
	}
}

func (t *Tracker) handleLogin(conn Conn, id string, env Envelope) (Outcome, error) {
	p, err := decodeLogin(env)
	if err != nil {
		return Outcome{}, err
	}
	isAdmin := p.EmailOK && p.PasswordOK && t.auth.IsAdmin(p.Email, p.Password)
	role := t.sessions.Login(id, p.Email, isAdmin, t.clock.Now())
	t.logger.Info("session logged in", "session", id, "role", role)
	t.reply(conn, TypeLoginSuccess, LoginSuccessPayload{Role: role})
	t.commit()
	return Applied, nil
}

func (t *Tracker) handleLocation(id string, env Envelope) (Outcome, error) {
	u, err := decodeLocation(env)
	if err != nil {
		return Outcome{}, err
	}
	if t.sessions.RoleOf(id) == RoleUnauthenticated {
		return Ignored(ReasonNotLoggedIn), nil
	}
	if !t.sessions.UpdateLocation(id, u) {
		return Ignored(ReasonUnknownSession), nil
	}
	t.commit()
	return Applied, nil
}

// handleZone applies an admin zone mutation. An update or delete naming a
// missing zone changes nothing but still recounts and broadcasts.
func (t *Tracker) handleZone(env Envelope) (Outcome, error) {
	var attrs ZoneAttrs
	if env.Type != TypeDeleteZone {
		if err := decodePayload(env, &attrs); err != nil {
			return Outcome{}, err
		}
	}

	outcome := Applied
	switch env.Type {
	case TypeCreateZone:
		id := t.zones.Create(attrs)
		t.logger.Info("zone created", "zone", id)
	case TypeUpdateZone, TypeDeleteZone:
		id, err := decodeZoneID(env)
		if err != nil {
			return Outcome{}, err
		}
		var found bool
		if env.Type == TypeUpdateZone {
			found = t.zones.Update(id, attrs)
		} else {
			found = t.zones.Delete(id)
		}
		if found {
			t.logger.Info("zone changed", "zone", id, "action", env.Type)
		} else {
			outcome = Ignored(ReasonUnknownZone)
		}
	}
	t.commit()
	return outcome, nil
}

// commit finishes a mutation: recount, then push state to everyone.
func (t *Tracker) commit() {
	t.Recompute()
	t.recordState()
	t.Broadcast()
}

func (t *Tracker) recordState() {
	crowded := 0
	for _, z := range t.zones.zones {
		if z.IsCrowded {
			crowded++
		}
	}
	t.recorder.StateChanged(t.sessions.Len(), t.zones.Len(), crowded)
}

func (t *Tracker) reply(conn Conn, msgType string, payload any) {
	msg, err := Encode(msgType, payload)
	if err != nil {
		t.logger.Error("encode reply", "type", msgType, "err", err)
		return
	}
	if err := conn.Send(msg); err != nil {
		t.logger.Warn("reply not delivered", "type", msgType, "err", err)
	}
}

// BuildAdminView returns every zone and every logged-in session.
func (t *Tracker) BuildAdminView() StateView {
	return StateView{
		Zones: t.zones.Snapshot(),
		Users: t.sessions.Authenticated(),
	}
}

// BuildUserView returns every zone and no session data.
func (t *Tracker) BuildUserView() StateView {
	return StateView{
		Zones: t.zones.Snapshot(),
		Users: map[string]Session{},
	}
}

// Broadcast pushes a state_update to every connection, choosing the view by
// role. Sends run concurrently and the round ends when all have settled; a
// failed send is logged and never affects the other recipients.
func (t *Tracker) Broadcast() BroadcastResult {
	recipients := t.sessions.Recipients()
	if len(recipients) == 0 {
		return BroadcastResult{}
	}

	payloads := make(map[View][]byte, 2)
	for _, rcpt := range recipients {
		view := ViewFor(rcpt.Role)
		if _, ok := payloads[view]; ok {
			continue
		}
		state := t.BuildUserView()
		if view == AdminView {
			state = t.BuildAdminView()
		}
		msg, err := Encode(TypeStateUpdate, state)
		if err != nil {
			t.logger.Error("encode state update", "err", err)
			return BroadcastResult{}
		}
		payloads[view] = msg
	}

	var wg sync.WaitGroup
	var failed atomic.Int64
	for _, rcpt := range recipients {
		wg.Add(1)
		go func(rcpt Recipient, msg []byte) {
			defer wg.Done()
			if err := rcpt.Conn.Send(msg); err != nil {
				failed.Add(1)
				if !errors.Is(err, ErrConnClosed) {
					t.logger.Warn("state update not delivered", "err", err)
				}
			}
		}(rcpt, payloads[ViewFor(rcpt.Role)])
	}
	wg.Wait()

	result := BroadcastResult{Recipients: len(recipients), Failed: int(failed.Load())}
	t.recorder.BroadcastRound(result.Recipients, result.Failed)
	t.logger.Debug("broadcast round complete", "recipients", result.Recipients, "failed", result.Failed)
	return result
}

// BroadcastResult summarizes one broadcast round.
type BroadcastResult struct {
	Recipients int
	Failed     int
}

// ErrConnClosed is returned by Conn implementations that have already shut
// down. Broadcasts count it as a failure without logging it.
var ErrConnClosed = errors.New("connection closed")
