package cli

import (
	"fmt"

	"github.com/metorial/bluefox"
	"github.com/metorial/bluefox/internal/discovery"
	"go.uber.org/zap"
)

type Config struct {
	Token         string
	BaseURL       string
	ConsulAddr    string
	ConsulService string
	Verbose       bool
}

func NewLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

// ResolveBaseURL picks the panel URL: an explicit URL wins, then Consul,
// then the library default.
func ResolveBaseURL(cfg Config) (string, error) {
	if cfg.BaseURL != "" {
		return cfg.BaseURL, nil
	}
	if cfg.ConsulAddr == "" {
		return bluefox.DefaultBaseURL, nil
	}

	sd, err := discovery.NewServiceDiscovery(cfg.ConsulAddr)
	if err != nil {
		return "", err
	}
	url, err := sd.DiscoverPanel(cfg.ConsulService)
	if err != nil {
		return "", fmt.Errorf("discover panel: %w", err)
	}
	return url, nil
}

func NewClient(cfg Config, logger *zap.Logger) (*bluefox.Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("an API token is required (--token or BLUEFOX_TOKEN)")
	}

	baseURL, err := ResolveBaseURL(cfg)
	if err != nil {
		return nil, err
	}
	logger.Debug("using panel", zap.String("url", baseURL))

	return bluefox.New(cfg.Token,
		bluefox.WithBaseURL(baseURL),
		bluefox.WithLogger(logger),
	)
}
