// Package config loads client and server settings from the environment,
// an optional .env file and an optional fortunes YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/fortune402/fortune"
)

// LogConfig controls the logrus logger.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL"  envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// ClientConfig configures `fortune open`.
type ClientConfig struct {
	PrivateKey        string        `env:"PRIVATE_KEY"`
	EVMPrivateKey     string        `env:"EVM_PRIVATE_KEY"`
	ResourceServerURL string        `env:"RESOURCE_SERVER_URL" envDefault:"http://localhost:4021"`
	EndpointPath      string        `env:"ENDPOINT_PATH"       envDefault:"/api/fortune"`
	Network           string        `env:"NETWORK"             envDefault:"base-sepolia"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT"     envDefault:"0s"`
	Log               LogConfig
}

// ServerConfig configures `fortune serve`.
type ServerConfig struct {
	Port               int           `env:"PORT"                envDefault:"4021"`
	EndpointPath       string        `env:"ENDPOINT_PATH"       envDefault:"/api/fortune"`
	PayTo              string        `env:"PAY_TO_ADDRESS"      envDefault:"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"`
	Price              string        `env:"PRICE"               envDefault:"$0.01"`
	Network            string        `env:"NETWORK"             envDefault:"base-sepolia"`
	Description        string        `env:"ROUTE_DESCRIPTION"   envDefault:"Your Fortune Awaits"`
	MaxTimeoutSeconds  int           `env:"MAX_TIMEOUT_SECONDS" envDefault:"60"`
	FacilitatorURL     string        `env:"FACILITATOR_URL"     envDefault:"https://x402.org/facilitator"`
	FacilitatorTimeout time.Duration `env:"FACILITATOR_TIMEOUT" envDefault:"30s"`
	FortunesFile       string        `env:"FORTUNES_FILE"`
	Log                LogConfig
}

// LoadDotEnv loads the given .env files (".env" when none are named) into the
// process environment. Missing files are ignored; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// LoadClient parses and validates the client configuration.
func LoadClient() (ClientConfig, error) {
	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

// Key returns the configured private key, preferring PRIVATE_KEY over EVM_PRIVATE_KEY.
func (c ClientConfig) Key() string {
	if key := strings.TrimSpace(c.PrivateKey); key != "" {
		return key
	}
	return strings.TrimSpace(c.EVMPrivateKey)
}

// ResourceURL joins the server URL and the endpoint path.
func (c ClientConfig) ResourceURL() string {
	return strings.TrimSuffix(c.ResourceServerURL, "/") + "/" + strings.TrimPrefix(c.EndpointPath, "/")
}

// NetworkPattern returns the CAIP-2 network the client agrees to pay on.
func (c ClientConfig) NetworkPattern() string {
	network, err := NormalizeNetwork(c.Network)
	if err != nil {
		return ""
	}
	return network
}

// Validate checks the client configuration. A missing key is not an error:
// the controller reports it as NotConfigured.
func (c ClientConfig) Validate() error {
	u, err := url.Parse(c.ResourceServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid RESOURCE_SERVER_URL: %q", c.ResourceServerURL)
	}
	if !strings.HasPrefix(c.EndpointPath, "/") {
		return fmt.Errorf("ENDPOINT_PATH must start with '/': %q", c.EndpointPath)
	}
	if _, err := NormalizeNetwork(c.Network); err != nil {
		return fmt.Errorf("invalid NETWORK: %w", err)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative")
	}
	return nil
}

// LoadServer parses and validates the server configuration.
func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, err
	}
	cfg.PayTo = common.HexToAddress(cfg.PayTo).Hex()
	cfg.Network, _ = NormalizeNetwork(cfg.Network)
	return cfg, nil
}

// Validate checks the server configuration.
func (c ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}
	if !strings.HasPrefix(c.EndpointPath, "/") {
		return fmt.Errorf("ENDPOINT_PATH must start with '/': %q", c.EndpointPath)
	}
	if !common.IsHexAddress(c.PayTo) {
		return fmt.Errorf("invalid PAY_TO_ADDRESS: %q", c.PayTo)
	}
	network, err := NormalizeNetwork(c.Network)
	if err != nil {
		return fmt.Errorf("invalid NETWORK: %w", err)
	}
	if err := ValidatePrice(c.Price, network); err != nil {
		return fmt.Errorf("invalid PRICE: %w", err)
	}
	if c.MaxTimeoutSeconds <= 0 {
		return fmt.Errorf("MAX_TIMEOUT_SECONDS must be positive: %d", c.MaxTimeoutSeconds)
	}
	if _, err := url.ParseRequestURI(c.FacilitatorURL); err != nil {
		return fmt.Errorf("invalid FACILITATOR_URL: %w", err)
	}
	return nil
}

// Addr is the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Fortunes returns the candidate list: the fortunes file when set, otherwise
// the built-in list.
func (c ServerConfig) Fortunes() ([]string, error) {
	if c.FortunesFile == "" {
		return append([]string(nil), fortune.DefaultFortunes...), nil
	}
	return LoadFortunes(c.FortunesFile)
}

type fortunesFile struct {
	Fortunes []string `yaml:"fortunes"`
}

// LoadFortunes reads a YAML file holding either a top-level list of strings
// or a mapping with a "fortunes" list.
func LoadFortunes(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fortunes file: %w", err)
	}

	var doc fortunesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		var list []string
		if listErr := yaml.Unmarshal(data, &list); listErr != nil {
			return nil, fmt.Errorf("parse fortunes file %s: %w", path, err)
		}
		doc.Fortunes = list
	}

	if len(doc.Fortunes) == 0 {
		return nil, fmt.Errorf("fortunes file %s: %w", path, fortune.ErrNoCandidates)
	}
	for i, f := range doc.Fortunes {
		if strings.TrimSpace(f) == "" {
			return nil, fmt.Errorf("fortunes file %s: entry %d is blank", path, i)
		}
	}
	return doc.Fortunes, nil
}

// NewLogger builds a logrus logger from the log configuration.
func NewLogger(cfg LogConfig) (*logrus.Logger, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	log.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT: %q", cfg.Format)
	}
	return log, nil
}
