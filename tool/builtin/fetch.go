package builtin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/petal-labs/petalmcp/mcp"
	"github.com/petal-labs/petalmcp/tool"
)

const (
	// FetchToolName is the registered name of the website fetcher.
	FetchToolName = "mcp_fetch"

	defaultFetchTimeout        = 10 * time.Second
	defaultFetchConnectTimeout = 5 * time.Second
	defaultUserAgent           = "MCP Test Server (github.com/modelcontextprotocol/python-sdk)"
)

// FetchConfig tunes the website fetcher.
type FetchConfig struct {
	Timeout        time.Duration `yaml:"timeout,omitempty"`
	ConnectTimeout time.Duration `yaml:"connect_timeout,omitempty"`
	UserAgent      string        `yaml:"user_agent,omitempty"`
	// MaxBytes caps the returned body; zero means unlimited.
	MaxBytes int64 `yaml:"max_bytes,omitempty"`
}

func (c FetchConfig) withDefaults() FetchConfig {
	if c.Timeout <= 0 {
		c.Timeout = defaultFetchTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultFetchConnectTimeout
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = defaultUserAgent
	}
	return c
}

// Fetcher retrieves a URL over HTTP GET, following redirects, under a fixed
// connect and overall deadline.
type Fetcher struct {
	cfg    FetchConfig
	client *http.Client
}

// NewFetcher builds a fetcher with its own HTTP client.
func NewFetcher(cfg FetchConfig) *Fetcher {
	cfg = cfg.withDefaults()
	return &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: newTransport(cfg.ConnectTimeout),
		},
	}
}

func newTransport(connectTimeout time.Duration) *http.Transport {
	dialer := &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: connectTimeout,
		MaxIdleConns:        16,
		IdleConnTimeout:     90 * time.Second,
	}
}

// FetchDescriptor describes the mcp_fetch tool.
func FetchDescriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:        FetchToolName,
		Description: "Fetches a website and returns its content",
		InputSchema: tool.Schema{
			Required: []string{"url"},
			Properties: map[string]tool.Property{
				"url": {Type: tool.TypeString, Description: "URL to fetch"},
			},
		},
	}
}

// Invoke satisfies tool.Handler.
func (f *Fetcher) Invoke(ctx context.Context, args tool.Arguments) []mcp.ContentBlock {
	url, _ := args.String("url")
	body, err := f.Fetch(ctx, url)
	if err != nil {
		return tool.Fail(ctx, err)
	}
	return mcp.Text(body)
}

// Fetch returns the response body of url. Failures are *tool.ToolError values
// classified as timeout, upstream status, or generic failure.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fetchFailure(err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fetchFailure(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", tool.NewUpstreamError(resp.StatusCode,
			fmt.Sprintf("HTTP %d error while fetching the website.", resp.StatusCode))
	}

	var reader io.Reader = resp.Body
	if f.cfg.MaxBytes > 0 {
		reader = io.LimitReader(resp.Body, f.cfg.MaxBytes)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return "", fetchFailure(err)
	}
	return string(body), nil
}

func fetchFailure(err error) *tool.ToolError {
	if isTimeout(err) {
		return tool.NewToolError(tool.ToolErrorCodeTimeout, "Request timed out while trying to fetch the website.", true, err)
	}
	return tool.NewToolError(tool.ToolErrorCodeTransportFailure, "Failed to fetch website: "+err.Error(), false, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
