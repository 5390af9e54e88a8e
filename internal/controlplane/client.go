package controlplane

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/convoctl/internal/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"resty.dev/v3"
)

const (
	DefaultBaseURL   = "https://api.agora.io/api/conversational-ai-agent/v2/projects"
	DefaultTimeout   = 10 * time.Second
	DefaultListLimit = 20

	// ListStateRunning is the list filter value selecting running sessions.
	ListStateRunning = 2

	HeaderRequestID = "X-Request-ID"

	OpJoin       = "join"
	OpLeave      = "leave"
	OpListActive = "list_active"
)

// ClientConfig configures one control-plane client bound to one application.
type ClientConfig struct {
	BaseURL            string
	AppID              string
	Credentials        Credentials
	Timeout            time.Duration
	ListState          int
	ListLimit          int
	CAFile             string
	InsecureSkipVerify bool
	UserAgent          string
	Logger             *zerolog.Logger
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:   DefaultBaseURL,
		Timeout:   DefaultTimeout,
		ListState: ListStateRunning,
		ListLimit: DefaultListLimit,
		UserAgent: "convoctl",
	}
}

// WithDefaults fills zero values from DefaultClientConfig.
func (c ClientConfig) WithDefaults() ClientConfig {
	def := DefaultClientConfig()
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = def.BaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.ListState == 0 {
		c.ListState = def.ListState
	}
	if c.ListLimit <= 0 {
		c.ListLimit = def.ListLimit
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = def.UserAgent
	}
	return c
}

func (c ClientConfig) Validate() error {
	if strings.TrimSpace(c.AppID) == "" {
		return fmt.Errorf("%w: app id required", ErrInvalidConfig)
	}
	u, err := url.Parse(strings.TrimSpace(c.BaseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: base url %q", ErrInvalidConfig, c.BaseURL)
	}
	if _, err := c.Credentials.Token(); err != nil {
		return err
	}
	return nil
}

// Response is the raw outcome of one remote call that reached the server.
type Response struct {
	Status    int
	Body      []byte
	RequestID string
	Duration  time.Duration
}

// OK reports a 200 status.
func (r Response) OK() bool {
	return r.Status == http.StatusOK
}

// Client issues join, leave and list-active against one application.
// It never retries; every call is bounded by ClientConfig.Timeout.
type Client struct {
	cfg    ClientConfig
	rc     *resty.Client
	logger zerolog.Logger
}

func NewClient(cfg ClientConfig) (*Client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	token, err := cfg.Credentials.Token()
	if err != nil {
		return nil, err
	}
	tlsCfg, err := clientTLSConfig(cfg)
	if err != nil {
		return nil, err
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	rc := resty.New().
		SetBaseURL(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")).
		SetTimeout(cfg.Timeout).
		SetAuthScheme("Basic").
		SetAuthToken(token).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "application/json")
	if tlsCfg != nil {
		rc.SetTLSClientConfig(tlsCfg)
	}

	return &Client{
		cfg:    cfg,
		rc:     rc,
		logger: logger.With().Str("component", "controlplane").Str("app_id", cfg.AppID).Logger(),
	}, nil
}

// Close releases pooled connections.
func (c *Client) Close() error {
	return c.rc.Close()
}

// Join posts the create-session document.
func (c *Client) Join(ctx context.Context, doc []byte) (Response, error) {
	return c.do(ctx, OpJoin, http.MethodPost, "/{appId}/join", func(r *resty.Request) {
		r.SetHeader("Content-Type", "application/json").SetBody(doc)
	})
}

// Leave terminates the session identified by agentID.
func (c *Client) Leave(ctx context.Context, agentID string) (Response, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return Response{}, fmt.Errorf("%w: agent id required for leave", ErrInvalidConfig)
	}
	return c.do(ctx, OpLeave, http.MethodPost, "/{appId}/agents/{agentId}/leave", func(r *resty.Request) {
		r.SetPathParam("agentId", agentID)
	})
}

// ListActive lists sessions in the configured state, bounded by ListLimit.
func (c *Client) ListActive(ctx context.Context) (Response, error) {
	return c.do(ctx, OpListActive, http.MethodGet, "/{appId}/agents", func(r *resty.Request) {
		r.SetQueryParam("state", strconv.Itoa(c.cfg.ListState)).
			SetQueryParam("limit", strconv.Itoa(c.cfg.ListLimit))
	})
}

func (c *Client) do(
	ctx context.Context,
	op string,
	method string,
	path string,
	configure func(*resty.Request),
) (Response, error) {
	requestID := uuid.NewString()
	req := c.rc.R().
		SetContext(ctx).
		SetHeader(HeaderRequestID, requestID).
		SetPathParam("appId", c.cfg.AppID)
	if configure != nil {
		configure(req)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	elapsed := time.Since(start)
	if err != nil {
		observability.RecordControlPlane(op, 0, elapsed)
		terr := &TransportError{Op: op, RequestID: requestID, Err: err}
		c.logger.Warn().
			Str("op", op).
			Str("request_id", requestID).
			Bool("timeout", terr.Timeout()).
			Dur("duration", elapsed).
			Err(err).
			Msg("control-plane request failed")
		return Response{RequestID: requestID, Duration: elapsed}, terr
	}

	out := Response{
		Status:    resp.StatusCode(),
		Body:      resp.Bytes(),
		RequestID: requestID,
		Duration:  elapsed,
	}
	observability.RecordControlPlane(op, out.Status, elapsed)
	c.logger.Debug().
		Str("op", op).
		Str("request_id", requestID).
		Int("status", out.Status).
		Int("bytes", len(out.Body)).
		Dur("duration", elapsed).
		Msg("control-plane response")
	return out, nil
}

func clientTLSConfig(cfg ClientConfig) (*tls.Config, error) {
	caPath := strings.TrimSpace(cfg.CAFile)
	if caPath == "" && !cfg.InsecureSkipVerify {
		return nil, nil
	}
	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	if caPath != "" {
		caPEM, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("%w: read ca bundle: %v", ErrInvalidConfig, err)
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(caPEM); !ok {
			return nil, fmt.Errorf("%w: parse ca bundle: %s", ErrInvalidConfig, caPath)
		}
		tlsCfg.RootCAs = pool
	}
	return tlsCfg, nil
}
