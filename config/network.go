package config

import (
	"fmt"
	"strings"

	x402 "github.com/x402-foundation/x402/go"
	"github.com/x402-foundation/x402/go/mechanisms/evm"
	evmserver "github.com/x402-foundation/x402/go/mechanisms/evm/exact/server"
	evmv1 "github.com/x402-foundation/x402/go/mechanisms/evm/v1"
)

type explorer struct {
	txURL   string
	testnet bool
}

// Block explorers of the chains the fortune cookie is usually deployed on,
// keyed by CAIP-2 network.
var explorers = map[string]explorer{
	"eip155:8453":  {txURL: "https://basescan.org/tx/"},
	"eip155:84532": {txURL: "https://sepolia.basescan.org/tx/", testnet: true},
	"eip155:43114": {txURL: "https://snowtrace.io/tx/"},
	"eip155:43113": {txURL: "https://testnet.snowtrace.io/tx/", testnet: true},
}

// NormalizeNetwork returns the CAIP-2 form of name. Legacy names such as
// "base-sepolia" resolve through their chain ID. The network must carry a
// default USDC deployment, since prices are quoted in dollars.
func NormalizeNetwork(name string) (string, error) {
	name = strings.TrimSpace(name)
	if chainID, err := evmv1.GetEvmChainId(strings.ToLower(name)); err == nil {
		name = "eip155:" + chainID.String()
	}

	cfg, err := evm.GetNetworkConfig(name)
	if err != nil {
		return "", err
	}
	if cfg.DefaultAsset.Address == "" {
		return "", fmt.Errorf("network %s has no default USDC asset", name)
	}
	return name, nil
}

// ValidatePrice checks that price converts to a positive USDC amount on network.
func ValidatePrice(price, network string) error {
	amount, err := evmserver.NewExactEvmScheme().ParsePrice(price, x402.Network(network))
	if err != nil {
		return err
	}
	if strings.HasPrefix(amount.Amount, "-") || strings.Trim(amount.Amount, "0") == "" {
		return fmt.Errorf("price must be positive: %q", price)
	}
	return nil
}

// IsTestnet reports whether network is a known test network.
func IsTestnet(network string) bool {
	return explorers[network].testnet
}

// ExplorerURL links a transaction hash on a block explorer. It returns "" for
// networks without a known explorer or an empty hash.
func ExplorerURL(network, transaction string) string {
	if transaction == "" {
		return ""
	}
	if normalized, err := NormalizeNetwork(network); err == nil {
		network = normalized
	}
	e, ok := explorers[network]
	if !ok {
		return ""
	}
	return e.txURL + transaction
}
