package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	x402http "github.com/x402-foundation/x402/go/http"
)

const testNetwork = "eip155:84532"

// stubFacilitator answers the facilitator HTTP API without touching a chain.
type stubFacilitator struct {
	// invalid, when set, is returned as the verify rejection reason.
	invalid string
	// settleError, when set, fails settlement with this reason.
	settleError string
	transaction string

	mu       sync.Mutex
	verified int
	settled  int
}

func (f *stubFacilitator) counts() (verified, settled int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verified, f.settled
}

func (f *stubFacilitator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/supported":
		writeJSON(w, map[string]interface{}{
			"kinds": []map[string]interface{}{
				{"x402Version": 2, "scheme": SchemeExact, "network": testNetwork},
			},
			"extensions": []string{},
			"signers":    map[string][]string{},
		})
	case "/verify":
		f.verified++
		if f.invalid != "" {
			writeJSON(w, map[string]interface{}{"isValid": false, "invalidReason": f.invalid})
			return
		}
		writeJSON(w, map[string]interface{}{"isValid": true, "payer": testPayTo})
	case "/settle":
		if f.settleError != "" {
			writeJSON(w, map[string]interface{}{
				"success": false, "errorReason": f.settleError, "transaction": "", "network": testNetwork,
			})
			return
		}
		f.settled++
		tx := f.transaction
		if tx == "" {
			tx = "0xfeed"
		}
		writeJSON(w, map[string]interface{}{
			"success": true, "transaction": tx, "network": testNetwork, "payer": testPayTo,
		})
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	_ = json.NewEncoder(w).Encode(v)
}

// newStubFacilitatorClient serves f over HTTP and returns the SDK client for it.
func newStubFacilitatorClient(t *testing.T, f *stubFacilitator) *x402http.HTTPFacilitatorClient {
	t.Helper()
	ts := httptest.NewServer(f)
	t.Cleanup(ts.Close)
	return x402http.NewHTTPFacilitatorClient(&x402http.FacilitatorConfig{URL: ts.URL})
}

func testGatewayConfig(facilitator *x402http.HTTPFacilitatorClient) GatewayConfig {
	return GatewayConfig{
		EndpointPath:      "/api/fortune",
		Network:           testNetwork,
		PayTo:             testPayTo,
		Price:             "$0.01",
		Description:       "Your Fortune Awaits",
		MaxTimeoutSeconds: 60,
		Facilitator:       facilitator,
	}
}
