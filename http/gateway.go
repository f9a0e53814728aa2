package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	x402 "github.com/x402-foundation/x402/go"
	x402http "github.com/x402-foundation/x402/go/http"
	ginmw "github.com/x402-foundation/x402/go/http/gin"
	evm "github.com/x402-foundation/x402/go/mechanisms/evm/exact/server"
)

// SchemeExact is the only payment scheme the gateway accepts.
const SchemeExact = "exact"

// ContextKeyPayload is the gin context key under which the SDK middleware
// stores the verified x402.PaymentPayload.
const ContextKeyPayload = "x402_payload"

// DefaultPaymentTimeout bounds verification and settlement of one request.
const DefaultPaymentTimeout = 30 * time.Second

// GatewayConfig describes the paid endpoint. Requests to EndpointPath and to
// any path below it must carry a payment.
type GatewayConfig struct {
	EndpointPath      string
	Network           string
	PayTo             string
	Price             string
	Description       string
	MaxTimeoutSeconds int
	// Extensions are advertised in the 402 challenge. Defaults to the
	// fortune output schema.
	Extensions map[string]interface{}

	Facilitator x402.FacilitatorClient
	Paywall     *x402http.PaywallConfig
	Timeout     time.Duration
}

// Validate checks the fields the resource server cannot default.
func (c GatewayConfig) Validate() error {
	switch {
	case c.Facilitator == nil:
		return ErrMissingFacilitator
	case c.Network == "":
		return ErrMissingNetwork
	case c.Price == "":
		return ErrMissingPrice
	case c.PayTo == "":
		return ErrMissingPayTo
	case !common.IsHexAddress(c.PayTo):
		return ErrInvalidPayTo
	}
	return nil
}

// Routes returns the protected routes: the endpoint itself and its sub-paths.
func (c GatewayConfig) Routes() x402http.RoutesConfig {
	extensions := c.Extensions
	if extensions == nil {
		extensions = outputSchemaExtension()
	}
	route := x402http.RouteConfig{
		Accepts: x402http.PaymentOptions{
			{
				Scheme:            SchemeExact,
				PayTo:             c.PayTo,
				Price:             c.Price,
				Network:           x402.Network(c.Network),
				MaxTimeoutSeconds: c.MaxTimeoutSeconds,
			},
		},
		Description: c.Description,
		MimeType:    "application/json",
		Extensions:  extensions,
	}

	path := strings.TrimSuffix(c.endpointPath(), "/")
	return x402http.RoutesConfig{
		http.MethodGet + " " + path:        route,
		http.MethodGet + " " + path + "/*": route,
	}
}

func (c GatewayConfig) endpointPath() string {
	if c.EndpointPath == "" {
		return DefaultEndpointPath
	}
	return c.EndpointPath
}

// Gateway puts the fortune endpoint behind an x402 paywall. Verification and
// settlement are delegated to the facilitator through the SDK resource server;
// the gateway only logs and counts outcomes.
type Gateway struct {
	server  *x402http.HTTPServer
	route   string
	timeout time.Duration
	paywall *x402http.PaywallConfig
	metrics *Metrics
	log     logrus.FieldLogger
}

// NewGateway creates the resource server for cfg with the EVM exact scheme
// registered on cfg.Network.
func NewGateway(cfg GatewayConfig, metrics *Metrics, log logrus.FieldLogger) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPaymentTimeout
	}

	g := &Gateway{
		route:   cfg.endpointPath(),
		timeout: cfg.Timeout,
		paywall: cfg.Paywall,
		metrics: metrics,
		log:     log.WithField("component", "gateway"),
	}

	resource := x402.Newx402ResourceServer(
		x402.WithFacilitatorClient(cfg.Facilitator),
		x402.WithSchemeServer(x402.Network(cfg.Network), evm.NewExactEvmScheme()),
	)
	resource.OnVerifyFailure(g.onVerifyFailure)
	resource.OnAfterSettle(g.onAfterSettle)
	resource.OnSettleFailure(g.onSettleFailure)

	g.server = x402http.Wrappedx402HTTPResourceServer(cfg.Routes(), resource)
	return g, nil
}

// Sync fetches the facilitator's supported kinds and checks the routes against
// them. Until it succeeds, paid requests cannot be verified.
func (g *Gateway) Sync(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.server.Initialize(ctx)
}

// Middleware returns the gin paywall. It expects Sync to have run.
func (g *Gateway) Middleware() gin.HandlerFunc {
	paywall := ginmw.PaymentMiddlewareFromHTTPServer(g.server,
		ginmw.WithSyncFacilitatorOnStart(false),
		ginmw.WithTimeout(g.timeout),
		ginmw.WithPaywallConfig(g.paywall),
	)
	return func(c *gin.Context) {
		paywall(c)
		if c.Writer.Status() == http.StatusPaymentRequired && !hasPaymentHeader(c.Request.Header) {
			g.metrics.challenge(g.route)
		}
	}
}

func (g *Gateway) onVerifyFailure(ctx x402.VerifyFailureContext) (*x402.VerifyFailureHookResult, error) {
	g.metrics.settlement(g.route, outcomeInvalid)
	g.log.WithError(ctx.Error).WithField("network", ctx.Requirements.GetNetwork()).Info("payment rejected")
	return nil, nil
}

func (g *Gateway) onAfterSettle(ctx x402.SettleResultContext) error {
	g.metrics.settlement(g.route, outcomeSettled)
	g.log.WithFields(logrus.Fields{
		"transaction": ctx.Result.Transaction,
		"network":     ctx.Result.Network,
		"payer":       ctx.Result.Payer,
	}).Info("payment settled")
	return nil
}

func (g *Gateway) onSettleFailure(ctx x402.SettleFailureContext) (*x402.SettleFailureHookResult, error) {
	g.metrics.settlement(g.route, outcomeFailed)
	g.log.WithError(ctx.Error).WithField("network", ctx.Requirements.GetNetwork()).Warn("payment settlement failed")
	return nil, nil
}
