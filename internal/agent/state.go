package agent

import "time"

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStarting
	PhaseJoined
	PhaseConflictResolving
	PhaseRetryScheduled
	PhaseStopping
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStarting:
		return "starting"
	case PhaseJoined:
		return "joined"
	case PhaseConflictResolving:
		return "conflict_resolving"
	case PhaseRetryScheduled:
		return "retry_scheduled"
	case PhaseStopping:
		return "stopping"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Busy reports phases that own the single in-flight slot.
func (p Phase) Busy() bool {
	switch p {
	case PhaseStarting, PhaseConflictResolving, PhaseRetryScheduled, PhaseStopping:
		return true
	default:
		return false
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Outcome classifies one start attempt. It drives the next transition and is
// never stored beyond the transition that reports it.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeStarted
	OutcomeConflictDetected
	OutcomeRejected
	OutcomeTransportError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStarted:
		return "started"
	case OutcomeConflictDetected:
		return "conflict_detected"
	case OutcomeRejected:
		return "rejected"
	case OutcomeTransportError:
		return "transport_error"
	default:
		return "none"
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// State is a copy of the controller's view of the remote session.
// AgentID is non-empty iff Joined.
type State struct {
	Joined    bool      `json:"joined"`
	AgentID   string    `json:"agent_id,omitempty"`
	Phase     Phase     `json:"phase"`
	Attempt   int       `json:"attempt"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transition is emitted to subscribers on every phase change.
type Transition struct {
	From    Phase
	To      Phase
	Outcome Outcome
	AgentID string
	Attempt int
	Err     string
	At      time.Time
}
