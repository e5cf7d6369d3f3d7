package call

import "github.com/peerdial/peerdial/internal/domain"

// EventKind discriminates manager events delivered to subscribers.
type EventKind int

const (
	// EventPhase: the session phase changed; Phase is set.
	EventPhase EventKind = iota
	// EventIncoming: a call request arrived; Incoming is set.
	EventIncoming
	// EventDuration: 1 Hz tick while active; Duration is set ("mm:ss").
	EventDuration
	// EventNotice: human-readable terminal reason for the UI to display.
	EventNotice
)

// IncomingInfo identifies who is ringing us.
type IncomingInfo struct {
	From       domain.ConnID
	FromCallID domain.CallID
	FromName   string
}

// Event is one observable state change pushed to subscribers.
type Event struct {
	Kind     EventKind
	Phase    domain.Phase
	Incoming *IncomingInfo
	Duration string
	Notice   string
}

// Snapshot is the read side of the manager for UI polling.
type Snapshot struct {
	Phase       domain.Phase
	IsInCall    bool
	IsCalling   bool
	Incoming    *IncomingInfo
	Duration    string
	IsMuted     bool
	IsSpeakerOn bool
}
