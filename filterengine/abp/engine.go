// Package abp is the default filterengine.Engine for Adblock Plus style
// filter lists. Network filters are additionally checked with AdGuard's
// urlfilter rule parser so patterns the reference parser rejects never
// reach the compiler.
package abp

import (
	"strings"
	"sync"
	"unicode"

	"github.com/AdguardTeam/urlfilter/rules"

	"github.com/xraph/rulesync/filterengine"
)

// Compile-time interface check.
var _ filterengine.Engine = (*Engine)(nil)

var elemHideSeparators = []string{"#@#", "#?#", "#$#", "##"}

// contentTypes lists the request type options the parser accepts.
var contentTypes = map[string]bool{
	"script":         true,
	"image":          true,
	"stylesheet":     true,
	"object":         true,
	"xmlhttprequest": true,
	"subdocument":    true,
	"ping":           true,
	"websocket":      true,
	"webrtc":         true,
	"media":          true,
	"font":           true,
	"other":          true,
	"document":       true,
	"popup":          true,
	"elemhide":       true,
	"generichide":    true,
	"genericblock":   true,
}

// urlfilterOptions are the options forwarded to urlfilter for validation.
var urlfilterOptions = map[string]bool{
	"script":         true,
	"image":          true,
	"stylesheet":     true,
	"object":         true,
	"xmlhttprequest": true,
	"subdocument":    true,
	"ping":           true,
	"websocket":      true,
	"media":          true,
	"font":           true,
	"other":          true,
	"match-case":     true,
	"third-party":    true,
}

// valueOptions take a "name=value" form.
var valueOptions = map[string]bool{
	"domain":  true,
	"sitekey": true,
	"csp":     true,
	"rewrite": true,
	"header":  true,
}

// Engine parses ABP filter text and tracks which filters are disabled.
type Engine struct {
	mu       sync.RWMutex
	disabled map[string]struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithDisabled marks texts as disabled from the start.
func WithDisabled(texts ...string) Option {
	return func(e *Engine) {
		for _, t := range texts {
			e.disabled[e.Normalize(t)] = struct{}{}
		}
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{disabled: make(map[string]struct{})}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetEnabled implements filterengine.Engine.
func (e *Engine) SetEnabled(text string, enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := e.Normalize(text)
	if enabled {
		delete(e.disabled, key)
		return
	}
	e.disabled[key] = struct{}{}
}

// IsEnabled implements filterengine.Engine.
func (e *Engine) IsEnabled(text string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	_, off := e.disabled[text]
	return !off
}

// Normalize trims the text and strips whitespace from everything except
// comments and element hiding selectors.
func (e *Engine) Normalize(text string) string {
	text = strings.TrimSpace(text)
	if text == "" || strings.HasPrefix(text, "!") {
		return text
	}

	if sep, idx := findElemHideSeparator(text); idx >= 0 {
		domains := stripSpaces(text[:idx])
		selector := strings.TrimSpace(text[idx+len(sep):])
		return domains + sep + selector
	}

	return stripSpaces(text)
}

// DomainsOf implements filterengine.Engine.
func (e *Engine) DomainsOf(f *filterengine.Filter) []string {
	if f == nil {
		return nil
	}
	out := make([]string, 0, len(f.Domains)+len(f.ExcludedDomains))
	out = append(out, f.Domains...)
	return append(out, f.ExcludedDomains...)
}

// Parse implements filterengine.Engine.
func (e *Engine) Parse(text string) (*filterengine.Filter, error) {
	if text == "" {
		return nil, &filterengine.SyntaxError{Reason: filterengine.ReasonInvalid}
	}

	if strings.HasPrefix(text, "!") || strings.HasPrefix(text, "[") {
		return &filterengine.Filter{Text: text, Type: filterengine.TypeComment}, nil
	}

	if sep, idx := findElemHideSeparator(text); idx >= 0 {
		return parseElemHide(text, sep, idx)
	}

	return parseNetwork(text)
}

func parseElemHide(text, sep string, idx int) (*filterengine.Filter, error) {
	f := &filterengine.Filter{
		Text:     text,
		Type:     filterengine.TypeElemHide,
		Selector: text[idx+len(sep):],
	}
	if sep == "#@#" {
		f.Type = filterengine.TypeElemHideException
	}
	if f.Selector == "" {
		return nil, &filterengine.SyntaxError{Reason: filterengine.ReasonInvalid}
	}

	if idx > 0 {
		for _, d := range strings.Split(text[:idx], ",") {
			switch {
			case d == "":
			case strings.HasPrefix(d, "~"):
				f.ExcludedDomains = append(f.ExcludedDomains, strings.ToLower(d[1:]))
			default:
				f.Domains = append(f.Domains, strings.ToLower(d))
			}
		}
	}
	return f, nil
}

func parseNetwork(text string) (*filterengine.Filter, error) {
	f := &filterengine.Filter{Text: text, Type: filterengine.TypeBlocking}

	body := text
	if strings.HasPrefix(body, "@@") {
		f.Type = filterengine.TypeAllowing
		body = body[2:]
	}

	pattern, options := splitOptions(body)
	if options != "" {
		if err := parseOptions(f, options); err != nil {
			return nil, err
		}
	}

	if len(pattern) > 2 && strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") {
		f.Regexp = true
		f.Pattern = pattern[1 : len(pattern)-1]
	} else {
		f.Pattern = pattern
	}

	if err := validateWithURLFilter(f); err != nil {
		return nil, err
	}
	return f, nil
}

// splitOptions splits "pattern$options". A '$' inside a regular
// expression pattern is not an options separator.
func splitOptions(body string) (string, string) {
	idx := strings.LastIndex(body, "$")
	if idx < 0 {
		return body, ""
	}
	if strings.HasPrefix(body, "/") && idx < strings.LastIndex(body, "/") {
		return body, ""
	}
	return body[:idx], body[idx+1:]
}

func parseOptions(f *filterengine.Filter, options string) error {
	for _, raw := range strings.Split(options, ",") {
		if raw == "" {
			continue
		}

		name, value, hasValue := strings.Cut(raw, "=")
		name = strings.ToLower(name)
		negated := strings.HasPrefix(name, "~")
		bare := strings.TrimPrefix(name, "~")
		f.Options = append(f.Options, bare)

		switch {
		case hasValue && valueOptions[bare] && !negated:
			switch bare {
			case "domain":
				for _, d := range strings.Split(value, "|") {
					switch {
					case d == "":
					case strings.HasPrefix(d, "~"):
						f.ExcludedDomains = append(f.ExcludedDomains, strings.ToLower(d[1:]))
					default:
						f.Domains = append(f.Domains, strings.ToLower(d))
					}
				}
			case "sitekey":
				f.Sitekeys = append(f.Sitekeys, strings.Split(value, "|")...)
			}
		case hasValue:
			return &filterengine.SyntaxError{Reason: filterengine.ReasonUnknownOption, Option: bare}
		case bare == "third-party" || bare == "3p":
			tp := !negated
			f.ThirdParty = &tp
		case bare == "first-party" || bare == "1p":
			tp := negated
			f.ThirdParty = &tp
		case bare == "match-case" && !negated:
			f.MatchCase = true
		case contentTypes[bare]:
			if negated {
				f.ExcludedContentTypes = append(f.ExcludedContentTypes, bare)
			} else {
				f.ContentTypes = append(f.ContentTypes, bare)
			}
		case valueOptions[bare]:
			// csp and friends may appear bare; the compiler rejects them.
		default:
			return &filterengine.SyntaxError{Reason: filterengine.ReasonUnknownOption, Option: bare}
		}
	}
	return nil
}

// validateWithURLFilter rebuilds the filter with only the options urlfilter
// understands and lets it parse the result. Domain lists are left out so
// hostname problems are reported by the compiler with the offending domain.
func validateWithURLFilter(f *filterengine.Filter) error {
	var b strings.Builder
	if f.Type == filterengine.TypeAllowing {
		b.WriteString("@@")
	}
	if f.Regexp {
		b.WriteString("/" + f.Pattern + "/")
	} else {
		b.WriteString(f.Pattern)
	}

	var opts []string
	for _, ct := range f.ContentTypes {
		if urlfilterOptions[ct] {
			opts = append(opts, ct)
		}
	}
	if f.MatchCase {
		opts = append(opts, "match-case")
	}
	if f.ThirdParty != nil {
		if *f.ThirdParty {
			opts = append(opts, "third-party")
		} else {
			opts = append(opts, "~third-party")
		}
	}
	if len(opts) > 0 {
		b.WriteString("$" + strings.Join(opts, ","))
	}

	if _, err := rules.NewNetworkRule(b.String(), 0); err != nil {
		reason := filterengine.ReasonInvalidPattern
		if f.Regexp {
			reason = filterengine.ReasonInvalidRegexp
		}
		return &filterengine.SyntaxError{Reason: reason}
	}
	return nil
}

func findElemHideSeparator(text string) (string, int) {
	best, bestIdx := "", -1
	for _, sep := range elemHideSeparators {
		if idx := strings.Index(text, sep); idx >= 0 && (bestIdx < 0 || idx < bestIdx) {
			best, bestIdx = sep, idx
		}
	}
	return best, bestIdx
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
