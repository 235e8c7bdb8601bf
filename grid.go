package pingmatrix

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"text/template"
)

// NewTargetGrid creates multiple targets from a URL template and dimensions
// using cartesian product expansion.
//
// The URL template uses Go's text/template syntax. Dimension values are
// URL-encoded before interpolation. Missing template keys cause an error.
//
// Each target name includes dimension values in the format
// "Base Name (val1/val2)" (values from alphabetically sorted keys), and its
// ID is the slug of that name.
//
// Example:
//
//	targets, err := NewTargetGrid("CDN",
//	    WithURLTemplate("https://{{.region}}.cdn.example.com/favicon.ico"),
//	    WithDimensions(map[string][]string{
//	        "region": {"eu", "us"},
//	    }),
//	)
//	// Returns 2 targets, usable with WithTargets(targets...)
func NewTargetGrid(baseName string, opts ...GridOption) ([]Target, error) {
	if strings.TrimSpace(baseName) == "" {
		return nil, errors.New("base name cannot be empty")
	}

	cfg := &gridConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.urlTemplate == "" {
		return nil, errors.New("URL template required")
	}
	if len(cfg.dimensions) == 0 {
		return nil, errors.New("at least one dimension required")
	}

	// missingkey=error fails fast on typos in the template
	tmpl, err := template.New("url").Option("missingkey=error").Parse(cfg.urlTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid URL template: %w", err)
	}

	combinations := cartesianProduct(cfg.dimensions)
	if len(combinations) == 0 {
		return nil, nil
	}

	targets := make([]Target, 0, len(combinations))
	for _, combo := range combinations {
		urlStr, err := executeTemplate(tmpl, urlEncodeMap(combo))
		if err != nil {
			return nil, fmt.Errorf("template execution failed: %w", err)
		}

		name := formatTargetName(baseName, combo)

		var tOpts []TargetOption
		if cfg.color != "" {
			tOpts = append(tOpts, WithColor(cfg.color))
		}

		t, err := NewTarget(name, urlStr, tOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create target '%s': %w", name, err)
		}
		targets = append(targets, t)
	}

	return targets, nil
}

// cartesianProduct generates all combinations of dimension values.
// Keys are sorted alphabetically for deterministic output.
// Values maintain their original slice order.
//
// Example:
//
//	Input:  {"x": ["a","b"], "y": ["1","2"]}
//	Output: [{"x":"a","y":"1"}, {"x":"a","y":"2"}, {"x":"b","y":"1"}, {"x":"b","y":"2"}]
func cartesianProduct(dims map[string][]string) []map[string]string {
	if len(dims) == 0 {
		return nil
	}

	keys := sortedKeys(dims)
	for _, k := range keys {
		if len(dims[k]) == 0 {
			return nil
		}
	}

	total := 1
	for _, k := range keys {
		total *= len(dims[k])
	}
	result := make([]map[string]string, 0, total)

	indices := make([]int, len(keys))
	for {
		combo := make(map[string]string, len(keys))
		for i, k := range keys {
			combo[k] = dims[k][indices[i]]
		}
		result = append(result, combo)

		// increment indices (rightmost first)
		for i := len(keys) - 1; i >= 0; i-- {
			indices[i]++
			if indices[i] < len(dims[keys[i]]) {
				break
			}
			indices[i] = 0
			if i == 0 {
				return result
			}
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// urlEncodeMap returns a new map with all values URL-encoded.
func urlEncodeMap(m map[string]string) map[string]string {
	result := make(map[string]string, len(m))
	for k, v := range m {
		result[k] = url.QueryEscape(v)
	}
	return result
}

// executeTemplate renders the template with the given data.
func executeTemplate(tmpl *template.Template, data map[string]string) (string, error) {
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// formatTargetName creates a name in the format "Base (v1/v2)".
func formatTargetName(baseName string, combo map[string]string) string {
	keys := sortedKeys(combo)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = combo[k]
	}
	return fmt.Sprintf("%s (%s)", baseName, strings.Join(parts, "/"))
}
