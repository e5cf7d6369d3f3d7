package domain

// Phase is the lifecycle stage of a call session.
type Phase int

const (
	PhaseIdle Phase = iota
	// PhaseRingingOut: we sent a call request and wait for accept/reject.
	PhaseRingingOut
	// PhaseRingingIn: a call request arrived and waits for the local user.
	PhaseRingingIn
	// PhaseNegotiating: accept happened, offer/answer/ICE in flight.
	PhaseNegotiating
	PhaseActive
	PhaseEnded
	PhaseRejected
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRingingOut:
		return "ringing_out"
	case PhaseRingingIn:
		return "ringing_in"
	case PhaseNegotiating:
		return "negotiating"
	case PhaseActive:
		return "active"
	case PhaseEnded:
		return "ended"
	case PhaseRejected:
		return "rejected"
	case PhaseFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether the session is finished and its resources
// must already have been released.
func (p Phase) Terminal() bool {
	return p == PhaseEnded || p == PhaseRejected || p == PhaseFailed
}

// Role fixes who produces the SDP offer. It is set when the session is
// created and never inferred later from which message happens to arrive.
type Role int

const (
	// RoleCaller initiated the call and creates the offer once accepted.
	RoleCaller Role = iota
	// RoleCallee accepted the call and answers the caller's offer.
	RoleCallee
)

func (r Role) String() string {
	if r == RoleCaller {
		return "caller"
	}
	return "callee"
}
