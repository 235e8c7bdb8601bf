package pingmatrix

import (
	"errors"
	"fmt"
)

// gridConfig holds configuration during target grid construction.
type gridConfig struct {
	urlTemplate string
	dimensions  map[string][]string
	color       string
}

// GridOption configures target grid generation.
// GridOption implements the functional options pattern for [NewTargetGrid].
type GridOption func(*gridConfig) error

// WithURLTemplate sets the URL template for target generation.
// The template uses Go's text/template syntax with dimension keys as variables.
//
// Example:
//
//	WithURLTemplate("https://{{.region}}.example.com/favicon.ico?env={{.env}}")
//
// Returns an error if the template string is empty.
func WithURLTemplate(tmpl string) GridOption {
	return func(cfg *gridConfig) error {
		if tmpl == "" {
			return errors.New("URL template required")
		}
		cfg.urlTemplate = tmpl
		return nil
	}
}

// WithDimensions sets the dimension values for cartesian product expansion.
// Each key in the map becomes a template variable, and the cartesian product
// of all values generates the target combinations.
//
// Returns an error if the map is empty, any dimension has no values,
// or any value is an empty string.
func WithDimensions(dims map[string][]string) GridOption {
	return func(cfg *gridConfig) error {
		if len(dims) == 0 {
			return errors.New("at least one dimension required")
		}
		for k, vals := range dims {
			if len(vals) == 0 {
				return fmt.Errorf("dimension '%s' has no values", k)
			}
			for i, v := range vals {
				if v == "" {
					return fmt.Errorf("dimension '%s' contains empty value at index %d", k, i)
				}
			}
		}
		cfg.dimensions = dims
		return nil
	}
}

// WithGridColor gives every generated target the same color. Without it,
// colors come from [Palette] by position.
func WithGridColor(color string) GridOption {
	return func(cfg *gridConfig) error {
		if !colorPattern.MatchString(color) {
			return fmt.Errorf("invalid color %q (expected #rgb or #rrggbb)", color)
		}
		cfg.color = color
		return nil
	}
}
