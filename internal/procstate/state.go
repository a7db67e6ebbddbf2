// Package procstate reports the host process's current importance class.
//
// All detection heuristics live behind the Detector interface so the session
// controller never touches platform specifics directly.
package procstate

// State is the process importance class at the moment of the query.
type State int

const (
	// Foreground: the shell reported foreground activity recently.
	Foreground State = iota
	// Background: the shell has been seen this boot, but is not in front.
	Background
	// Killed: the agent is running but no shell activity was ever observed
	// this boot, a cold start driven purely by push delivery.
	Killed
)

func (s State) String() string {
	switch s {
	case Foreground:
		return "foreground"
	case Background:
		return "background"
	case Killed:
		return "killed"
	default:
		return "unknown"
	}
}

// Detector answers the importance query. Implementations must compute the
// answer fresh on every call; the controller queries exactly once per invite
// and state can change between invites.
type Detector interface {
	Current() State
}
