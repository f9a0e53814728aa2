package fortune

import "context"

// PaymentObserver is told about the payment exchange of an in-flight request.
// Transports below the payment layer find it in the request context.
type PaymentObserver interface {
	// PaymentRequired is called when the resource answered 402.
	PaymentRequired()
	// PaymentSubmitted is called when the request is re-sent with payment proof.
	PaymentSubmitted()
}

type observerKey struct{}

// WithPaymentObserver returns a context carrying obs.
func WithPaymentObserver(ctx context.Context, obs PaymentObserver) context.Context {
	return context.WithValue(ctx, observerKey{}, obs)
}

// PaymentObserverFrom returns the observer carried by ctx, or a no-op observer.
func PaymentObserverFrom(ctx context.Context) PaymentObserver {
	if ctx != nil {
		if obs, ok := ctx.Value(observerKey{}).(PaymentObserver); ok && obs != nil {
			return obs
		}
	}
	return nopObserver{}
}

type nopObserver struct{}

func (nopObserver) PaymentRequired()  {}
func (nopObserver) PaymentSubmitted() {}
