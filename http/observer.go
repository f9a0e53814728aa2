package http

import (
	"net/http"

	"github.com/fortune402/fortune"
)

// Request headers carrying a payment: v2 and the legacy v1 name.
const (
	HeaderPaymentSignature = "PAYMENT-SIGNATURE"
	LegacyHeaderPayment    = "X-PAYMENT"
)

// ChallengeObserver is a RoundTripper placed beneath the payment transport.
// It reports the payment exchange to the PaymentObserver carried by the
// request context: a 402 on an unpaid request, then the paid retry.
type ChallengeObserver struct {
	Transport http.RoundTripper
}

// NewChallengeObserver wraps transport, or http.DefaultTransport when nil.
func NewChallengeObserver(transport http.RoundTripper) *ChallengeObserver {
	return &ChallengeObserver{Transport: transport}
}

// RoundTrip implements http.RoundTripper
func (o *ChallengeObserver) RoundTrip(req *http.Request) (*http.Response, error) {
	transport := o.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	obs := fortune.PaymentObserverFrom(req.Context())
	paid := hasPaymentHeader(req.Header)
	if paid {
		obs.PaymentSubmitted()
	}

	resp, err := transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if !paid && resp.StatusCode == http.StatusPaymentRequired {
		obs.PaymentRequired()
	}
	return resp, nil
}

func hasPaymentHeader(h http.Header) bool {
	return h.Get(HeaderPaymentSignature) != "" || h.Get(LegacyHeaderPayment) != ""
}
