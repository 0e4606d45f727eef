package supervisor

// State is the supervisor's lifecycle position. The three flags the UI cares
// about (enabled, stop requested, forced) are derived from it so they can
// never disagree.
//
// Idle -> Launching -> Running -> Stopping -> Idle
// Running -> ForceStopped -> Idle (shutdown)
// Running -> Idle (helper exited on its own)
type State int32

const (
	Idle State = iota
	Launching
	Running
	Stopping
	ForceStopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Launching:
		return "launching"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case ForceStopped:
		return "force_stopped"
	default:
		return "unknown"
	}
}

// Enabled reports whether a helper is live or being torn down.
func (s State) Enabled() bool {
	return s == Running || s == Stopping || s == ForceStopped
}

func (s State) StopRequested() bool {
	return s == Stopping || s == ForceStopped
}

func (s State) Forced() bool { return s == ForceStopped }
