package resolver

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

//go:embed overrides.yaml
var defaultOverrides []byte

// domainPattern captures the host part of a URL with or without scheme and www.
var domainPattern = regexp.MustCompile(`(?i)^(?:https?://)?(?:www\.)?([^/]+)`)

// Overrides maps bare domains to the canonical origin that serves them.
type Overrides struct {
	domains map[string]string
}

type overrideFile struct {
	Domains map[string]string `yaml:"domains" toml:"domains"`
}

// DefaultOverrides returns the built-in override table.
func DefaultOverrides() *Overrides {
	o, err := ParseOverrides(defaultOverrides, "yaml")
	if err != nil {
		panic(fmt.Sprintf("embedded overrides: %v", err))
	}
	return o
}

// LoadOverrides reads an override table from path, choosing the decoder by
// extension (.yaml, .yml or .toml). An empty path yields the built-in table.
func LoadOverrides(path string) (*Overrides, error) {
	if path == "" {
		return DefaultOverrides(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overrides: %w", err)
	}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return ParseOverrides(data, format)
}

// ParseOverrides decodes an override table in the given format ("yaml", "yml" or "toml").
func ParseOverrides(data []byte, format string) (*Overrides, error) {
	var file overrideFile

	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse yaml overrides: %w", err)
		}
	case "toml":
		if err := toml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse toml overrides: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported overrides format %q", format)
	}

	domains := make(map[string]string, len(file.Domains))
	for domain, target := range file.Domains {
		parsed, err := url.Parse(target)
		if err != nil || !HasHTTPScheme(target) || parsed.Host == "" {
			return nil, fmt.Errorf("override for %q: target %q is not an http(s) origin", domain, target)
		}
		domains[strings.ToLower(domain)] = strings.TrimRight(target, "/")
	}

	return &Overrides{domains: domains}, nil
}

// Apply rewrites raw when its domain is listed, keeping the path and query.
func (o *Overrides) Apply(raw string) (string, bool) {
	if o == nil || len(o.domains) == 0 {
		return raw, false
	}

	loc := domainPattern.FindStringSubmatchIndex(raw)
	if loc == nil {
		return raw, false
	}

	domain := strings.ToLower(raw[loc[2]:loc[3]])
	target, ok := o.domains[domain]
	if !ok {
		return raw, false
	}

	return target + raw[loc[1]:], true
}

// Len returns the number of configured domains.
func (o *Overrides) Len() int {
	if o == nil {
		return 0
	}
	return len(o.domains)
}
