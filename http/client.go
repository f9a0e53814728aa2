package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	x402 "github.com/x402-foundation/x402/go"
	x402http "github.com/x402-foundation/x402/go/http"
	evm "github.com/x402-foundation/x402/go/mechanisms/evm/exact/client"
	evmsigners "github.com/x402-foundation/x402/go/signers/evm"

	"github.com/fortune402/fortune"
)

// DefaultNetworkPattern registers the exact scheme for every EVM chain.
const DefaultNetworkPattern = "eip155:*"

// ErrNoSettlement is returned when a response carries no payment receipt.
var ErrNoSettlement = errors.New("x402: no settlement in response")

// settleResponseReader is the part of the SDK HTTP client used to read receipts.
type settleResponseReader interface {
	GetPaymentSettleResponse(headers map[string]string) (*x402.SettleResponse, error)
}

// PaymentClient is the paying side: an http.Client that answers 402
// challenges by signing an exact-scheme USDC authorization, and a reader for
// the settlement receipt the gateway returns.
type PaymentClient struct {
	httpClient *http.Client
	receipts   settleResponseReader
	address    string
}

// PaymentClientOption configures a PaymentClient
type PaymentClientOption func(*paymentClientOptions)

type paymentClientOptions struct {
	networkPattern string
	transport      http.RoundTripper
	timeout        time.Duration
}

// WithNetworkPattern limits the networks the client will pay on, e.g. "eip155:84532".
func WithNetworkPattern(pattern string) PaymentClientOption {
	return func(o *paymentClientOptions) {
		if pattern != "" {
			o.networkPattern = pattern
		}
	}
}

// WithTransport sets the transport beneath the challenge observer.
func WithTransport(rt http.RoundTripper) PaymentClientOption {
	return func(o *paymentClientOptions) {
		o.transport = rt
	}
}

// WithClientTimeout bounds each exchange, including the paid retry.
func WithClientTimeout(d time.Duration) PaymentClientOption {
	return func(o *paymentClientOptions) {
		o.timeout = d
	}
}

// NewPaymentClient creates a paying client from a hex private key, with or
// without the 0x prefix. An empty key yields fortune.ErrNotConfigured.
func NewPaymentClient(privateKey string, opts ...PaymentClientOption) (*PaymentClient, error) {
	options := &paymentClientOptions{networkPattern: DefaultNetworkPattern}
	for _, opt := range opts {
		opt(options)
	}

	key := NormalizePrivateKey(privateKey)
	if key == "" {
		return nil, fortune.ErrNotConfigured
	}

	signer, err := evmsigners.NewClientSignerFromPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create EVM signer: %w", err)
	}

	client := x402.Newx402Client()
	client.Register(x402.Network(options.networkPattern), evm.NewExactEvmScheme(signer, nil))
	httpClient := x402http.Newx402HTTPClient(client)

	base := &http.Client{
		Transport: NewChallengeObserver(options.transport),
		Timeout:   options.timeout,
	}

	return &PaymentClient{
		httpClient: x402http.WrapHTTPClientWithPayment(base, httpClient),
		receipts:   httpClient,
		address:    signer.Address(),
	}, nil
}

// NormalizePrivateKey trims key and ensures the 0x prefix. It returns "" for a blank key.
func NormalizePrivateKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	if !strings.HasPrefix(key, "0x") && !strings.HasPrefix(key, "0X") {
		key = "0x" + key
	}
	return "0x" + key[2:]
}

// Do sends req through the payment-aware client. It satisfies fortune.Fetcher.
func (c *PaymentClient) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

// Address returns the payer address derived from the key.
func (c *PaymentClient) Address() string {
	return c.address
}

// Settlement reads the PAYMENT-RESPONSE receipt of a paid response.
func (c *PaymentClient) Settlement(header http.Header) (fortune.Settlement, error) {
	headers := make(map[string]string, len(header))
	for k, v := range header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}

	settle, err := c.receipts.GetPaymentSettleResponse(headers)
	if err != nil {
		return fortune.Settlement{}, fmt.Errorf("failed to read settlement: %w", err)
	}
	if settle == nil || settle.Transaction == "" {
		return fortune.Settlement{}, ErrNoSettlement
	}
	return fortune.Settlement{
		Transaction: settle.Transaction,
		Network:     string(settle.Network),
		Payer:       settle.Payer,
	}, nil
}
