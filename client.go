// Package bluefox is a client for the BlueFox game-server panel API.
package bluefox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/metorial/bluefox/internal/router"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const DefaultBaseURL = "https://panel.bluefox.host/api"

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnknownServer   = errors.New("unknown server")
	ErrMalformedServer = errors.New("malformed server payload")
)

// HTTPError is returned for panel responses with a status outside [200,400).
type HTTPError = router.HTTPError

type Client struct {
	token  string
	router *router.Router
}

type options struct {
	baseURL     string
	tokenPrefix string
	httpClient  *http.Client
	logger      *zap.Logger
	registerer  prometheus.Registerer
}

type Option func(*options)

func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		o.baseURL = baseURL
	}
}

func WithTokenPrefix(prefix string) Option {
	return func(o *options) {
		o.tokenPrefix = prefix
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegisterer registers the request counters and latency histogram on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

func New(token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: auth token is required", ErrInvalidArgument)
	}

	o := options{
		baseURL:     DefaultBaseURL,
		tokenPrefix: router.DefaultTokenPrefix,
	}
	for _, opt := range opts {
		opt(&o)
	}

	routerOpts := []router.Option{
		router.WithTokenPrefix(o.tokenPrefix),
		router.WithHTTPClient(o.httpClient),
		router.WithLogger(o.logger),
	}
	if o.registerer != nil {
		m := router.NewMetrics()
		if err := m.Register(o.registerer); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		routerOpts = append(routerOpts, router.WithMetrics(m))
	}

	return &Client{
		token:  token,
		router: router.New(o.baseURL, token, routerOpts...),
	}, nil
}

// api starts a new route; every call gets its own chain.
func (c *Client) api() router.Route {
	return c.router.Route()
}

func (c *Client) serverRoute(id string) router.Route {
	return c.api().Path("client", "servers", id)
}

func (c *Client) GetServer(ctx context.Context, id string) (*Server, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: server id is required", ErrInvalidArgument)
	}

	data, err := c.serverRoute(id).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("get server %s: %w", id, err)
	}

	return newServer(c, data)
}

// HasServer reports whether the server can be fetched with this token. Any
// failure of the fetch itself is reported as false.
func (c *Client) HasServer(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: server id is required", ErrInvalidArgument)
	}

	data, err := c.serverRoute(id).Get(ctx)
	if err != nil || data == nil {
		return false, nil
	}

	var probe struct {
		Attributes *struct {
			Identifier string `json:"identifier"`
		} `json:"attributes"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return false, nil
	}

	return probe.Attributes != nil && probe.Attributes.Identifier != "", nil
}

// ListServers maps every entry of the list response to a Server. Entries are
// not filtered by their object tag.
func (c *Client) ListServers(ctx context.Context) ([]*Server, error) {
	data, err := c.api().Path("client").Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	if data == nil {
		return []*Server{}, nil
	}

	var list struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &list); err != nil || len(list.Data) == 0 {
		return []*Server{}, nil
	}

	servers := make([]*Server, 0, len(list.Data))
	for i, raw := range list.Data {
		s, err := newServer(c, raw)
		if err != nil {
			return nil, fmt.Errorf("list servers: entry %d: %w", i, err)
		}
		servers = append(servers, s)
	}

	return servers, nil
}

func (c *Client) Me(ctx context.Context) (*Account, error) {
	data, err := c.api().Path("client", "account").Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	return newAccount(data), nil
}
