package channel

import (
	"errors"
	"strings"
)

// Domain errors
var (
	ErrEmptyURL           = errors.New("channel url cannot be empty")
	ErrEmptyName          = errors.New("channel name cannot be empty")
	ErrInvalidCountryCode = errors.New("country code must be two ASCII letters")
	ErrChannelNotFound    = errors.New("channel not found")
)

// Attributes holds the descriptive fields of a channel besides its identity.
type Attributes struct {
	Category string
	Country  string
	TVGID    string
	Logo     string
	Group    string
}

// Channel represents a playable live-TV stream in the domain.
// The stream URL is its identity; two channels with the same URL are the same channel.
type Channel struct {
	url   string
	name  string
	attrs Attributes
}

// NewChannel creates a new Channel with the given stream URL, display name and attributes.
// URL and name are trimmed. Returns ErrEmptyURL or ErrEmptyName when either is blank.
// An empty category defaults to CategoryOther.
func NewChannel(url, name string, attrs Attributes) (Channel, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return Channel{}, ErrEmptyURL
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Channel{}, ErrEmptyName
	}
	if attrs.Category == "" {
		attrs.Category = CategoryOther
	}
	attrs.Country = strings.ToLower(strings.TrimSpace(attrs.Country))
	return Channel{url: url, name: name, attrs: attrs}, nil
}

// ReconstructChannel rebuilds a Channel from persisted state.
// Intended for repository adapters only; it bypasses validation.
func ReconstructChannel(url, name string, attrs Attributes) Channel {
	return Channel{url: url, name: name, attrs: attrs}
}

func (c Channel) URL() string            { return c.url }
func (c Channel) Name() string           { return c.name }
func (c Channel) Category() string       { return c.attrs.Category }
func (c Channel) Country() string        { return c.attrs.Country }
func (c Channel) TVGID() string          { return c.attrs.TVGID }
func (c Channel) Logo() string           { return c.attrs.Logo }
func (c Channel) Group() string          { return c.attrs.Group }
func (c Channel) Attributes() Attributes { return c.attrs }

// WithCategory returns a copy of the channel with its category replaced.
func (c Channel) WithCategory(category string) Channel {
	c.attrs.Category = category
	return c
}

// WithLogo returns a copy of the channel with its logo replaced.
func (c Channel) WithLogo(logo string) Channel {
	c.attrs.Logo = logo
	return c
}

// NormalizeCountryCode lower-cases and validates a two-letter country code.
func NormalizeCountryCode(code string) (string, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if len(code) != 2 {
		return "", ErrInvalidCountryCode
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'a' || code[i] > 'z' {
			return "", ErrInvalidCountryCode
		}
	}
	return code, nil
}
