package launcher

// State is a step of the supervisor lifecycle.
type State int

const (
	StateInit State = iota
	StateSpawning
	StateWaitingHealthy
	StateHealthy
	StateBrowserOpened
	StateSupervising
	StateTimedOut
	StateTerminating
	StateExited
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateSpawning:
		return "SPAWNING"
	case StateWaitingHealthy:
		return "WAITING_HEALTHY"
	case StateHealthy:
		return "HEALTHY"
	case StateBrowserOpened:
		return "BROWSER_OPENED"
	case StateSupervising:
		return "SUPERVISING"
	case StateTimedOut:
		return "TIMED_OUT"
	case StateTerminating:
		return "TERMINATING"
	case StateExited:
		return "EXITED"
	default:
		return "UNKNOWN"
	}
}

// Exit codes returned by Run.
const (
	ExitOK      = 0
	ExitFailure = 1
)
