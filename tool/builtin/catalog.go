// Package builtin provides the tools this server ships with and the catalog
// that compiles them into a registry at startup.
package builtin

import (
	"fmt"
	"strings"

	"github.com/petal-labs/petalmcp/tool"
)

// Config selects and tunes the built-in tools.
type Config struct {
	// Enabled lists tool names to register; empty means DefaultTools.
	Enabled []string    `yaml:"enabled,omitempty"`
	Fetch   FetchConfig `yaml:"fetch,omitempty"`
	Vuln    VulnConfig  `yaml:"vuln,omitempty"`
}

// DefaultTools is the catalog order used when Config.Enabled is empty.
var DefaultTools = []string{FetchToolName, MoodToolName, VulnToolName}

// Names returns every built-in tool name in catalog order.
func Names() []string {
	return append([]string(nil), DefaultTools...)
}

// Catalog compiles the enabled built-in tools into a registry. Tools appear
// in the order of cfg.Enabled, or DefaultTools when none are listed.
func Catalog(cfg Config) (*tool.Registry, error) {
	names := cfg.Enabled
	if len(names) == 0 {
		names = DefaultTools
	}

	entries := make([]tool.Entry, 0, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		entry, err := entryFor(name, cfg)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return tool.NewRegistry(entries...)
}

func entryFor(name string, cfg Config) (tool.Entry, error) {
	switch name {
	case FetchToolName:
		return tool.Entry{Descriptor: FetchDescriptor(), Handler: NewFetcher(cfg.Fetch)}, nil
	case MoodToolName:
		return tool.Entry{Descriptor: MoodDescriptor(), Handler: tool.HandlerFunc(Mood)}, nil
	case VulnToolName:
		return tool.Entry{Descriptor: VulnDescriptor(), Handler: NewVulnLookup(cfg.Vuln)}, nil
	default:
		return tool.Entry{}, fmt.Errorf("builtin: unknown tool %q (available: %s)", name, strings.Join(DefaultTools, ", "))
	}
}
