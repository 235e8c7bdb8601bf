package pingmatrix

import (
	"errors"
	"net/url"
	"strings"
	"unicode"

	"github.com/jpalmerr/pingmatrix/internal/model"
)

// Target is a URL probed once per round.
//
// Target is immutable after creation via [NewTarget]. All fields are private
// with getter methods. Identity is [Target.ID]; two targets in one [Monitor]
// must not share an ID.
type Target struct {
	id    string
	name  string
	url   string
	color string
}

// ID returns the target's stable identifier.
func (t Target) ID() string {
	return t.id
}

// Name returns the display name recorded with every result.
func (t Target) Name() string {
	return t.name
}

// URL returns the probed URL. A cache-busting query parameter is added per
// probe; the stored URL never carries it.
func (t Target) URL() string {
	return t.url
}

// Color returns the display color, or "" when [Monitor] should assign one
// from the palette.
func (t Target) Color() string {
	return t.color
}

// NewTarget creates a [Target] with the given name, URL, and options.
//
// The rawURL parameter must be an absolute http:// or https:// URL. The ID
// defaults to a lowercase slug of the name (see [WithID]).
//
// Returns an error if the name is empty, the URL is invalid, or the derived
// ID is empty.
//
// Example:
//
//	t, err := pingmatrix.NewTarget("GitHub", "https://github.com/favicon.ico",
//	    pingmatrix.WithColor("#8b5cf6"),
//	)
func NewTarget(name, rawURL string, opts ...TargetOption) (Target, error) {
	if strings.TrimSpace(name) == "" {
		return Target{}, errors.New("target name cannot be empty")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return Target{}, errors.New("invalid URL: " + err.Error())
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return Target{}, errors.New("URL must have a scheme (http:// or https://)")
	}
	if parsedURL.Host == "" {
		return Target{}, errors.New("URL must have a host")
	}

	cfg := &targetConfig{id: slug(name)}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Target{}, err
		}
	}
	if cfg.id == "" {
		return Target{}, errors.New("target ID cannot be empty")
	}

	return Target{
		id:    cfg.id,
		name:  name,
		url:   rawURL,
		color: cfg.color,
	}, nil
}

// toModel converts t to the internal representation.
func (t Target) toModel() model.Target {
	return model.Target{ID: t.id, Name: t.name, URL: t.url, Color: t.color}
}

// slug lowercases s and joins runs of letters and digits with '-'.
func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}
