package fortune

// RequestState is the phase of the controller's single fortune request
type RequestState int

// Request states
const (
	StateIdle RequestState = iota
	StateAwaitingPayment
	StateLoading
	StateRevealed
	StateFailed
)

func (s RequestState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingPayment:
		return "awaiting_payment"
	case StateLoading:
		return "loading"
	case StateRevealed:
		return "revealed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable view of the controller. Transitions are pure
// methods returning the next snapshot.
type Snapshot struct {
	State RequestState
	// Fortune and Timestamp are set only when State is StateRevealed.
	Fortune   string
	Timestamp string
	// Transaction and Network reference the settlement of the payment, when
	// the payment collaborator could extract one.
	Transaction string
	Network     string
	// Err is set only when State is StateFailed.
	Err *Error
}

// Busy reports whether a request is outstanding.
func (s Snapshot) Busy() bool {
	return s.State == StateLoading || s.State == StateAwaitingPayment
}

// begin starts a request, discarding the previous outcome.
func (s Snapshot) begin() Snapshot {
	return Snapshot{State: StateLoading}
}

// challenged records that the resource answered 402 and the payment layer is
// producing proof.
func (s Snapshot) challenged() Snapshot {
	if s.State != StateLoading {
		return s
	}
	s.State = StateAwaitingPayment
	return s
}

// submitted records that the request was retried with payment attached.
func (s Snapshot) submitted() Snapshot {
	if s.State != StateAwaitingPayment {
		return s
	}
	s.State = StateLoading
	return s
}

// reveal completes the request with a fortune and an optional settlement.
func (s Snapshot) reveal(resp FortuneResponse, settlement *Settlement) Snapshot {
	next := Snapshot{
		State:     StateRevealed,
		Fortune:   resp.Fortune,
		Timestamp: resp.Timestamp,
	}
	if settlement != nil {
		next.Transaction = settlement.Transaction
		next.Network = settlement.Network
	}
	return next
}

// fail completes the request with err. Any transaction reference is dropped.
func (s Snapshot) fail(err *Error) Snapshot {
	return Snapshot{State: StateFailed, Err: err}
}
