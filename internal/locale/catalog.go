package locale

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Catalog matches user language preferences against the supported locale set.
type Catalog struct {
	tags    []language.Tag
	codes   []string
	matcher language.Matcher
}

// NewCatalog builds a catalog from BCP 47 codes. The first code is the
// fallback when no preference matches.
func NewCatalog(supported []string) (*Catalog, error) {
	if len(supported) == 0 {
		return nil, fmt.Errorf("locale catalog requires at least one supported locale")
	}
	tags := make([]language.Tag, 0, len(supported))
	codes := make([]string, 0, len(supported))
	for _, code := range supported {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		tag, err := language.Parse(code)
		if err != nil {
			return nil, fmt.Errorf("parse locale %q: %w", code, err)
		}
		tags = append(tags, tag)
		codes = append(codes, code)
	}
	if len(tags) == 0 {
		return nil, fmt.Errorf("locale catalog requires at least one supported locale")
	}
	return &Catalog{
		tags:    tags,
		codes:   codes,
		matcher: language.NewMatcher(tags),
	}, nil
}

// Codes returns the supported locale codes in catalog order.
func (c *Catalog) Codes() []string {
	return append([]string(nil), c.codes...)
}

// Supports reports whether the exact code is in the catalog.
func (c *Catalog) Supports(code string) bool {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, known := range c.codes {
		if known == code {
			return true
		}
	}
	return false
}

// Match resolves the best supported locale for the given preferences,
// falling back to the catalog's first entry.
func (c *Catalog) Match(preferred ...string) string {
	cleaned := make([]string, 0, len(preferred))
	for _, p := range preferred {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) == 0 {
		return c.codes[0]
	}
	_, index := language.MatchStrings(c.matcher, cleaned...)
	return c.codes[index]
}

// DisplayName returns the locale's name rendered in that locale, suitable for
// a language selection screen ("हिन्दी", not "Hindi").
func (c *Catalog) DisplayName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	name := display.Self.Name(tag)
	if name == "" {
		return code
	}
	return name
}
