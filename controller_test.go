package fortune

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testURL = "http://fortune.test/api/fortune"

type fetcherFunc func(*http.Request) (*http.Response, error)

func (f fetcherFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

type extractorFunc func(http.Header) (Settlement, error)

func (f extractorFunc) Settlement(h http.Header) (Settlement, error) { return f(h) }

func response(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func staticFetcher(status int, body string, header http.Header) fetcherFunc {
	return func(*http.Request) (*http.Response, error) {
		return response(status, body, header), nil
	}
}

func quietLogger() *logrus.Logger {
	log, _ := test.NewNullLogger()
	return log
}

func TestController_StartsIdle(t *testing.T) {
	c := NewController(testURL)
	assert.Equal(t, StateIdle, c.Snapshot().State)
	assert.False(t, c.Busy())
	assert.False(t, c.Configured())
}

func TestController_NotConfigured(t *testing.T) {
	c := NewController(testURL, WithLogger(quietLogger()))

	snap := c.RequestFortune(context.Background())

	assert.Equal(t, StateFailed, snap.State)
	require.NotNil(t, snap.Err)
	assert.ErrorIs(t, snap.Err, ErrNotConfigured)
	assert.Empty(t, snap.Fortune)
}

func TestController_Revealed(t *testing.T) {
	var gotReq *http.Request
	fetcher := fetcherFunc(func(req *http.Request) (*http.Response, error) {
		gotReq = req
		return response(http.StatusOK, `{"fortune":"X","timestamp":"T"}`, nil), nil
	})
	c := NewController(testURL, WithFetcher(fetcher), WithLogger(quietLogger()))

	snap := c.RequestFortune(context.Background())

	assert.Equal(t, StateRevealed, snap.State)
	assert.Equal(t, "X", snap.Fortune)
	assert.Equal(t, "T", snap.Timestamp)
	assert.Nil(t, snap.Err)
	assert.Empty(t, snap.Transaction)

	require.NotNil(t, gotReq)
	assert.Equal(t, http.MethodGet, gotReq.Method)
	assert.Equal(t, testURL, gotReq.URL.String())
	assert.Equal(t, "application/json", gotReq.Header.Get("Accept"))
}

func TestController_RevealedWithSettlement(t *testing.T) {
	header := http.Header{}
	header.Set("PAYMENT-RESPONSE", "receipt")
	extractor := extractorFunc(func(h http.Header) (Settlement, error) {
		assert.Equal(t, "receipt", h.Get("PAYMENT-RESPONSE"))
		return Settlement{Transaction: "0xabc", Network: "eip155:84532"}, nil
	})
	c := NewController(testURL,
		WithFetcher(staticFetcher(http.StatusOK, `{"fortune":"X","timestamp":"T"}`, header)),
		WithSettlementExtractor(extractor),
		WithLogger(quietLogger()),
	)

	snap := c.RequestFortune(context.Background())

	assert.Equal(t, StateRevealed, snap.State)
	assert.Equal(t, "0xabc", snap.Transaction)
	assert.Equal(t, "eip155:84532", snap.Network)
}

func TestController_UnparseableSettlementIsNonFatal(t *testing.T) {
	header := http.Header{}
	header.Set("PAYMENT-RESPONSE", "%%%garbage")
	extractor := extractorFunc(func(http.Header) (Settlement, error) {
		return Settlement{}, errors.New("failed to decode base64 header")
	})
	log, hook := test.NewNullLogger()
	c := NewController(testURL,
		WithFetcher(staticFetcher(http.StatusOK, `{"fortune":"X","timestamp":"T"}`, header)),
		WithSettlementExtractor(extractor),
		WithLogger(log),
	)

	snap := c.RequestFortune(context.Background())

	assert.Equal(t, StateRevealed, snap.State)
	assert.Equal(t, "X", snap.Fortune)
	assert.Empty(t, snap.Transaction)
	assert.Nil(t, snap.Err)

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Message == "failed to parse payment headers" {
			warned = true
		}
	}
	assert.True(t, warned, "extraction failure should be logged")
}

func TestController_PaymentNotProcessed(t *testing.T) {
	c := NewController(testURL,
		WithFetcher(staticFetcher(http.StatusPaymentRequired, `{"x402Version":2,"accepts":[]}`, nil)),
		WithLogger(quietLogger()),
	)

	snap := c.RequestFortune(context.Background())

	assert.Equal(t, StateFailed, snap.State)
	require.NotNil(t, snap.Err)
	assert.Equal(t, KindPaymentNotProcessed, snap.Err.Kind)
	assert.ErrorIs(t, snap.Err, ErrPaymentNotProcessed)
}

func TestController_RequestFailed(t *testing.T) {
	c := NewController(testURL,
		WithFetcher(staticFetcher(http.StatusInternalServerError, `{"error":"boom"}`, nil)),
		WithLogger(quietLogger()),
	)

	snap := c.RequestFortune(context.Background())

	assert.Equal(t, StateFailed, snap.State)
	require.NotNil(t, snap.Err)
	assert.Equal(t, KindRequestFailed, snap.Err.Kind)
	assert.Equal(t, http.StatusInternalServerError, snap.Err.Status)
	assert.Equal(t, "Request failed: 500", snap.Err.Hint())
}

func TestController_TransportErrorIsUnexpected(t *testing.T) {
	fetcher := fetcherFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	c := NewController(testURL, WithFetcher(fetcher), WithLogger(quietLogger()))

	snap := c.RequestFortune(context.Background())

	assert.Equal(t, StateFailed, snap.State)
	require.NotNil(t, snap.Err)
	assert.Equal(t, KindUnexpected, snap.Err.Kind)
	assert.Contains(t, snap.Err.Message, "connection refused")
	assert.Empty(t, snap.Transaction)
}

func TestController_BadBodyIsUnexpected(t *testing.T) {
	for name, body := range map[string]string{
		"not json":   `<html>`,
		"no fortune": `{"timestamp":"T"}`,
		"empty":      ``,
	} {
		t.Run(name, func(t *testing.T) {
			c := NewController(testURL,
				WithFetcher(staticFetcher(http.StatusOK, body, nil)),
				WithLogger(quietLogger()),
			)

			snap := c.RequestFortune(context.Background())

			assert.Equal(t, StateFailed, snap.State)
			require.NotNil(t, snap.Err)
			assert.Equal(t, KindUnexpected, snap.Err.Kind)
		})
	}
}

func TestController_TimeoutIsUnexpected(t *testing.T) {
	fetcher := fetcherFunc(func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	})
	c := NewController(testURL, WithFetcher(fetcher), WithTimeout(10*time.Millisecond), WithLogger(quietLogger()))

	snap := c.RequestFortune(context.Background())

	assert.Equal(t, StateFailed, snap.State)
	require.NotNil(t, snap.Err)
	assert.Equal(t, KindUnexpected, snap.Err.Kind)
	assert.False(t, c.Busy())
}

func TestController_SingleFlight(t *testing.T) {
	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetcher := fetcherFunc(func(*http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
		}
		<-release
		return response(http.StatusOK, `{"fortune":"X","timestamp":"T"}`, nil), nil
	})
	c := NewController(testURL, WithFetcher(fetcher), WithLogger(quietLogger()))

	done := make(chan Snapshot)
	go func() {
		done <- c.RequestFortune(context.Background())
	}()

	<-started
	assert.True(t, c.Busy())

	// Second call while loading must not reach the network
	second := c.RequestFortune(context.Background())
	assert.Equal(t, StateLoading, second.State)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	close(release)
	first := <-done

	assert.Equal(t, StateRevealed, first.State)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.False(t, c.Busy())
}

func TestController_ReentrantAfterSettling(t *testing.T) {
	var calls int32
	fetcher := fetcherFunc(func(*http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return response(http.StatusPaymentRequired, `{}`, nil), nil
		}
		return response(http.StatusOK, `{"fortune":"second","timestamp":"T"}`, nil), nil
	})
	c := NewController(testURL, WithFetcher(fetcher), WithLogger(quietLogger()))

	first := c.RequestFortune(context.Background())
	require.Equal(t, StateFailed, first.State)

	second := c.RequestFortune(context.Background())
	assert.Equal(t, StateRevealed, second.State)
	assert.Equal(t, "second", second.Fortune)
	assert.Nil(t, second.Err, "previous error must be cleared")
}

func TestController_PublishesTransitions(t *testing.T) {
	fetcher := fetcherFunc(func(req *http.Request) (*http.Response, error) {
		obs := PaymentObserverFrom(req.Context())
		obs.PaymentRequired()
		obs.PaymentSubmitted()
		return response(http.StatusOK, `{"fortune":"X","timestamp":"T"}`, nil), nil
	})
	c := NewController(testURL, WithFetcher(fetcher), WithLogger(quietLogger()))

	var mu sync.Mutex
	var states []RequestState
	cancel := c.Subscribe(func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s.State)
	})

	c.RequestFortune(context.Background())

	mu.Lock()
	assert.Equal(t, []RequestState{StateLoading, StateAwaitingPayment, StateLoading, StateRevealed}, states)
	mu.Unlock()

	cancel()
	c.RequestFortune(context.Background())

	mu.Lock()
	assert.Len(t, states, 4, "cancelled subscriber must not be notified")
	mu.Unlock()
}

func TestController_StaleObserverIgnored(t *testing.T) {
	var saved PaymentObserver
	fetcher := fetcherFunc(func(req *http.Request) (*http.Response, error) {
		if saved == nil {
			saved = PaymentObserverFrom(req.Context())
		}
		return response(http.StatusOK, `{"fortune":"X","timestamp":"T"}`, nil), nil
	})
	c := NewController(testURL, WithFetcher(fetcher), WithLogger(quietLogger()))

	c.RequestFortune(context.Background())
	require.NotNil(t, saved)

	saved.PaymentRequired()
	assert.Equal(t, StateRevealed, c.Snapshot().State)
}

func TestSnapshot_Transitions(t *testing.T) {
	revealed := Snapshot{}.begin().reveal(FortuneResponse{Fortune: "X"}, &Settlement{Transaction: "0x1"})
	assert.Equal(t, StateRevealed, revealed.State)
	assert.Equal(t, "0x1", revealed.Transaction)

	restarted := revealed.begin()
	assert.Equal(t, Snapshot{State: StateLoading}, restarted, "begin clears prior outcome")

	failed := restarted.fail(NewUnexpected(nil))
	assert.Equal(t, StateFailed, failed.State)
	assert.Empty(t, failed.Transaction)

	// challenge transitions only apply while in flight
	assert.Equal(t, failed, failed.challenged())
	assert.Equal(t, StateAwaitingPayment, restarted.challenged().State)
	assert.Equal(t, StateLoading, restarted.challenged().submitted().State)
}
