package order

import "time"

// Transition is the persistence action a payment outcome requires.
type Transition int

const (
	// TransitionNone means the outcome was already applied; nothing to write.
	TransitionNone Transition = iota
	TransitionMarkPaid
	TransitionCancel
)

func (t Transition) String() string {
	switch t {
	case TransitionMarkPaid:
		return "mark_paid"
	case TransitionCancel:
		return "cancel"
	default:
		return "none"
	}
}

// orderState implements the state pattern for payment outcomes.
type orderState interface {
	Status() Status
	OnPaymentSucceeded(o *Order, now time.Time) (Transition, error)
	OnPaymentFailed(o *Order, now time.Time) (Transition, error)
}

func stateOf(s Status) orderState {
	switch s {
	case StatusProcessing:
		return processingState{}
	case StatusPaid:
		return paidState{}
	case StatusCancelled:
		return cancelledState{}
	default:
		return nil
	}
}

// PaymentSucceeded applies a Success outcome in memory and reports the write it needs.
func (o *Order) PaymentSucceeded(now time.Time) (Transition, error) {
	st := stateOf(o.Status)
	if st == nil {
		return TransitionNone, ErrInvalidStateTransition
	}
	return st.OnPaymentSucceeded(o, now)
}

// PaymentFailed applies a Failure outcome in memory and reports the write it needs.
func (o *Order) PaymentFailed(now time.Time) (Transition, error) {
	st := stateOf(o.Status)
	if st == nil {
		return TransitionNone, ErrInvalidStateTransition
	}
	return st.OnPaymentFailed(o, now)
}

type processingState struct{}

func (processingState) Status() Status { return StatusProcessing }

func (processingState) OnPaymentSucceeded(o *Order, now time.Time) (Transition, error) {
	o.Status = StatusPaid
	o.PaymentConfirmed = true
	o.touch(now)
	return TransitionMarkPaid, nil
}

func (processingState) OnPaymentFailed(o *Order, now time.Time) (Transition, error) {
	o.Status = StatusCancelled
	o.touch(now)
	return TransitionCancel, nil
}

type paidState struct{}

func (paidState) Status() Status { return StatusPaid }

func (paidState) OnPaymentSucceeded(*Order, time.Time) (Transition, error) {
	return TransitionNone, nil
}

func (paidState) OnPaymentFailed(*Order, time.Time) (Transition, error) {
	return TransitionNone, ErrInvalidStateTransition
}

type cancelledState struct{}

func (cancelledState) Status() Status { return StatusCancelled }

func (cancelledState) OnPaymentSucceeded(*Order, time.Time) (Transition, error) {
	return TransitionNone, ErrInvalidStateTransition
}

func (cancelledState) OnPaymentFailed(*Order, time.Time) (Transition, error) {
	return TransitionNone, nil
}
