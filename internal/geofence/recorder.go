package geofence

// Recorder receives operational events from a Tracker. The server wires a
// Prometheus-backed implementation; tests may leave it nil.
type Recorder interface {
	MessageHandled(msgType string, outcome Outcome)
	BroadcastRound(recipients, failed int)
	StateChanged(sessions, zones, crowded int)
}

type nopRecorder struct{}

func (nopRecorder) MessageHandled(string, Outcome) {}
func (nopRecorder) BroadcastRound(int, int)        {}
func (nopRecorder) StateChanged(int, int, int)     {}
