package pingmatrix

import (
	"errors"
	"fmt"
	"regexp"
)

// colorPattern accepts #rgb and #rrggbb.
var colorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// targetConfig holds mutable state during target construction.
type targetConfig struct {
	id    string
	color string
}

// TargetOption is a function that configures a [Target] during construction.
//
// Options return an error if validation fails.
//
// Built-in options: [WithID], [WithColor].
type TargetOption func(*targetConfig) error

// WithID overrides the ID derived from the target name.
//
// Example:
//
//	t, err := pingmatrix.NewTarget("WeChat CDN", url, pingmatrix.WithID("wechat"))
//
// Returns an error if id is empty.
func WithID(id string) TargetOption {
	return func(cfg *targetConfig) error {
		if id == "" {
			return errors.New("target ID cannot be empty")
		}
		cfg.id = id
		return nil
	}
}

// WithColor sets the display color as a hex string such as "#ff7b00".
//
// Returns an error if the color is not #rgb or #rrggbb.
func WithColor(color string) TargetOption {
	return func(cfg *targetConfig) error {
		if !colorPattern.MatchString(color) {
			return fmt.Errorf("invalid color %q (expected #rgb or #rrggbb)", color)
		}
		cfg.color = color
		return nil
	}
}
