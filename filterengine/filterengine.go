// Package filterengine describes the filter parsing capability the
// compiler consumes. The engine owns filter syntax; rulesync only needs a
// normalized text, a parsed structure and the engine's enabled flag.
package filterengine

import "fmt"

// Engine parses and classifies filter text.
type Engine interface {
	// Normalize returns the canonical form of text used as ledger key.
	Normalize(text string) string

	// Parse parses normalized text. Invalid input yields a *SyntaxError.
	Parse(text string) (*Filter, error)

	// IsEnabled reports whether the filter is currently enabled in the
	// engine's own filter state.
	IsEnabled(text string) bool

	// SetEnabled records the filter's enabled state in the engine.
	SetEnabled(text string, enabled bool)

	// DomainsOf returns every hostname named in the filter's domain list,
	// included and excluded alike.
	DomainsOf(f *Filter) []string
}

// Type classifies a parsed filter.
type Type int

const (
	TypeComment Type = iota
	TypeBlocking
	TypeAllowing
	TypeElemHide
	TypeElemHideException
)

func (t Type) String() string {
	switch t {
	case TypeComment:
		return "comment"
	case TypeBlocking:
		return "blocking"
	case TypeAllowing:
		return "allowing"
	case TypeElemHide:
		return "elemhide"
	case TypeElemHideException:
		return "elemhide-exception"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// IsNetwork reports whether filters of this type act on requests.
func (t Type) IsNetwork() bool {
	return t == TypeBlocking || t == TypeAllowing
}

// Filter is a parsed filter.
type Filter struct {
	Text     string
	Type     Type
	Pattern  string // URL pattern, anchors kept
	Regexp   bool   // Pattern is a /regular expression/
	Selector string // element hiding selector

	MatchCase  bool
	ThirdParty *bool // nil = any, true = 3p only, false = 1p only

	ContentTypes         []string // option names, e.g. "script"
	ExcludedContentTypes []string // negated option names, e.g. "~image"

	Domains         []string // domain= values
	ExcludedDomains []string // ~domain values

	Sitekeys []string
	Options  []string // every option name in the order written
}

// SyntaxError describes why text is not a valid filter.
type SyntaxError struct {
	Reason string // machine readable, e.g. "filter_unknown_option"
	Option string // offending option when Reason is option related
}

func (e *SyntaxError) Error() string {
	if e.Option != "" {
		return fmt.Sprintf("filterengine: %s: %s", e.Reason, e.Option)
	}
	return "filterengine: " + e.Reason
}

// Reasons reported in SyntaxError.
const (
	ReasonInvalid        = "filter_invalid"
	ReasonUnknownOption  = "filter_unknown_option"
	ReasonInvalidRegexp  = "filter_invalid_regexp"
	ReasonInvalidPattern = "filter_invalid_pattern"
)
