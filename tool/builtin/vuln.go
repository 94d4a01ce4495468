package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/petal-labs/petalmcp/mcp"
	"github.com/petal-labs/petalmcp/tool"
)

const (
	// VulnToolName is the registered name of the vulnerability lookup tool.
	VulnToolName = "vuln_lookup"

	defaultVulnEndpoint = "https://api.osv.dev/v1/query"
	defaultVulnTimeout  = 10 * time.Second
	defaultVulnCacheTTL = 15 * time.Minute
)

// VulnConfig tunes the vulnerability lookup.
type VulnConfig struct {
	Endpoint string        `yaml:"endpoint,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
	CacheTTL time.Duration `yaml:"cache_ttl,omitempty"`
}

func (c VulnConfig) withDefaults() VulnConfig {
	if strings.TrimSpace(c.Endpoint) == "" {
		c.Endpoint = defaultVulnEndpoint
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultVulnTimeout
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = defaultVulnCacheTTL
	}
	return c
}

// VulnDescriptor describes the vuln_lookup tool.
func VulnDescriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:        VulnToolName,
		Description: "Looks up known vulnerabilities for a package in the OSV database",
		InputSchema: tool.Schema{
			Required: []string{"package", "ecosystem"},
			Properties: map[string]tool.Property{
				"package":   {Type: tool.TypeString, Description: "Package name, e.g. jinja2"},
				"ecosystem": {Type: tool.TypeString, Description: "Package ecosystem, e.g. PyPI, npm, Go"},
				"version":   {Type: tool.TypeString, Description: "Optional package version to check"},
			},
			Order: []string{"package", "ecosystem", "version"},
		},
	}
}

type osvQuery struct {
	Package osvPackage `json:"package"`
	Version string     `json:"version,omitempty"`
}

type osvPackage struct {
	Name      string `json:"name"`
	Ecosystem string `json:"ecosystem"`
}

// Vulnerability is the subset of an OSV record surfaced to the peer.
type Vulnerability struct {
	ID       string   `json:"id"`
	Summary  string   `json:"summary,omitempty"`
	Aliases  []string `json:"aliases,omitempty"`
	Modified string   `json:"modified,omitempty"`
}

type osvResponse struct {
	Vulns []Vulnerability `json:"vulns"`
}

type vulnResult struct {
	vulns []Vulnerability
	raw   []byte
}

// VulnLookup queries an OSV-compatible endpoint and caches answers.
type VulnLookup struct {
	cfg    VulnConfig
	client *http.Client
	cache  *Cache[vulnResult]
}

// NewVulnLookup builds a lookup client.
func NewVulnLookup(cfg VulnConfig) *VulnLookup {
	cfg = cfg.withDefaults()
	return &VulnLookup{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: newTransport(defaultFetchConnectTimeout),
		},
		cache: NewCache[vulnResult](),
	}
}

// Invoke satisfies tool.Handler.
func (v *VulnLookup) Invoke(ctx context.Context, args tool.Arguments) []mcp.ContentBlock {
	name, _ := args.String("package")
	ecosystem, _ := args.String("ecosystem")
	version, _ := args.String("version")

	result, err := v.lookup(ctx, osvQuery{
		Package: osvPackage{Name: name, Ecosystem: ecosystem},
		Version: version,
	})
	if err != nil {
		return tool.Fail(ctx, err)
	}

	uri := "osv://" + ecosystem + "/" + name
	if version != "" {
		uri += "@" + version
	}
	return []mcp.ContentBlock{
		mcp.TextBlock(summarize(ecosystem, name, version, result.vulns)),
		mcp.ResourceBlock(mcp.ResourceContents{
			URI:      uri,
			MimeType: "application/json",
			Text:     string(result.raw),
		}),
	}
}

func (v *VulnLookup) lookup(ctx context.Context, query osvQuery) (vulnResult, error) {
	key := query.Package.Ecosystem + "/" + query.Package.Name + "@" + query.Version
	if cached, ok := v.cache.Get(key); ok {
		return cached, nil
	}

	body, err := json.Marshal(query)
	if err != nil {
		return vulnResult{}, tool.NewToolError(tool.ToolErrorCodeInvocationFailed, "Failed to query vulnerability database: "+err.Error(), false, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return vulnResult{}, vulnFailure(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := v.client.Do(req)
	if err != nil {
		return vulnResult{}, vulnFailure(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return vulnResult{}, tool.NewUpstreamError(resp.StatusCode,
			fmt.Sprintf("HTTP %d error while querying the vulnerability database.", resp.StatusCode))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return vulnResult{}, vulnFailure(err)
	}
	var decoded osvResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return vulnResult{}, tool.NewToolError(tool.ToolErrorCodeDecodeFailure, "Failed to query vulnerability database: invalid response: "+err.Error(), false, err)
	}

	result := vulnResult{vulns: decoded.Vulns, raw: bytes.TrimSpace(raw)}
	v.cache.Set(key, result, v.cfg.CacheTTL)
	return result, nil
}

func vulnFailure(err error) *tool.ToolError {
	if isTimeout(err) {
		return tool.NewToolError(tool.ToolErrorCodeTimeout, "Request timed out while querying the vulnerability database.", true, err)
	}
	return tool.NewToolError(tool.ToolErrorCodeTransportFailure, "Failed to query vulnerability database: "+err.Error(), false, err)
}

func summarize(ecosystem, name, version string, vulns []Vulnerability) string {
	target := ecosystem + "/" + name
	if version != "" {
		target += "@" + version
	}
	if len(vulns) == 0 {
		return "No known vulnerabilities for " + target
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d known vulnerabilit", len(vulns))
	if len(vulns) == 1 {
		b.WriteString("y")
	} else {
		b.WriteString("ies")
	}
	fmt.Fprintf(&b, " for %s:", target)
	for _, vuln := range vulns {
		summary := strings.TrimSpace(vuln.Summary)
		if summary == "" {
			summary = "(no summary)"
		}
		fmt.Fprintf(&b, "\n%s: %s", vuln.ID, summary)
		if len(vuln.Aliases) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(vuln.Aliases, ", "))
		}
	}
	return b.String()
}
