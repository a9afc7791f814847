// Package compiler turns filter text into declarative rules.
//
// Compile never fails with a Go error for bad input: invalid syntax,
// options the substrate cannot express, bad hostnames and unsupported
// regular expressions are all reported as a *FilterError on the Result so
// the caller decides whether one bad filter matters for its batch.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"

	"github.com/xraph/rulesync/filterengine"
	"github.com/xraph/rulesync/rule"
)

// ErrorKind discriminates FilterError.
type ErrorKind string

const (
	KindInvalidFilter ErrorKind = "invalid_filter"
	KindInvalidDomain ErrorKind = "invalid_domain"
)

// FilterError explains why a filter produced no rules.
type FilterError struct {
	Kind   ErrorKind `json:"kind"`
	Text   string    `json:"text"`
	Reason string    `json:"reason,omitempty"`
	Option string    `json:"option,omitempty"`
	Domain string    `json:"domain,omitempty"`
}

func (e *FilterError) Error() string {
	switch {
	case e.Kind == KindInvalidDomain:
		return fmt.Sprintf("compiler: invalid domain %q in %q", e.Domain, e.Text)
	case e.Option != "":
		return fmt.Sprintf("compiler: %s (%s) in %q", e.Reason, e.Option, e.Text)
	default:
		return fmt.Sprintf("compiler: %s in %q", e.Reason, e.Text)
	}
}

// RegexChecker reports whether the substrate can evaluate a pattern.
type RegexChecker interface {
	IsRegexSupported(ctx context.Context, pattern string) (bool, error)
}

// Result is the outcome of compiling one filter.
type Result struct {
	Text    string
	Rules   []rule.Rule
	Enabled bool
	Err     *FilterError
}

// OK reports whether the filter is valid.
func (r Result) OK() bool { return r.Err == nil }

// options the substrate has no equivalent for.
var unsupportedOptions = map[string]bool{
	"sitekey": true,
	"csp":     true,
	"rewrite": true,
	"header":  true,
}

var resourceTypes = map[string]string{
	"script":         rule.ResourceScript,
	"image":          rule.ResourceImage,
	"stylesheet":     rule.ResourceStylesheet,
	"object":         rule.ResourceObject,
	"xmlhttprequest": rule.ResourceXMLHTTPRequest,
	"subdocument":    rule.ResourceSubFrame,
	"ping":           rule.ResourcePing,
	"websocket":      rule.ResourceWebSocket,
	"media":          rule.ResourceMedia,
	"font":           rule.ResourceFont,
	"other":          rule.ResourceOther,
	"document":       rule.ResourceMainFrame,
}

// Compiler compiles filters using a filter engine and the substrate's
// regular expression support.
type Compiler struct {
	engine filterengine.Engine
	regex  RegexChecker
}

// New creates a Compiler. regex may be nil, in which case every regular
// expression filter is accepted.
func New(engine filterengine.Engine, regex RegexChecker) *Compiler {
	return &Compiler{engine: engine, regex: regex}
}

// Engine returns the filter engine used by c.
func (c *Compiler) Engine() filterengine.Engine { return c.engine }

// Normalize delegates to the filter engine.
func (c *Compiler) Normalize(text string) string { return c.engine.Normalize(text) }

// Compile compiles normalized filter text.
func (c *Compiler) Compile(ctx context.Context, text string) Result {
	res := Result{Text: text, Enabled: true}

	f, err := c.engine.Parse(text)
	if err != nil {
		res.Err = invalid(text, err)
		return res
	}

	if f.Type == filterengine.TypeComment {
		res.Err = &FilterError{Kind: KindInvalidFilter, Text: text, Reason: filterengine.ReasonInvalid}
		return res
	}

	for _, opt := range f.Options {
		if unsupportedOptions[opt] {
			res.Err = &FilterError{Kind: KindInvalidFilter, Text: text, Reason: filterengine.ReasonUnknownOption, Option: opt}
			return res
		}
	}

	for _, d := range c.engine.DomainsOf(f) {
		if !validHostname(d) {
			res.Err = &FilterError{Kind: KindInvalidDomain, Text: text, Domain: d}
			return res
		}
	}

	if f.Regexp && c.regex != nil {
		ok, err := c.regex.IsRegexSupported(ctx, f.Pattern)
		if err != nil || !ok {
			res.Err = &FilterError{Kind: KindInvalidFilter, Text: text, Reason: filterengine.ReasonInvalidRegexp}
			return res
		}
	}

	if !c.engine.IsEnabled(text) {
		res.Enabled = false
		return res
	}

	if f.Type.IsNetwork() {
		res.Rules = networkRules(f)
	}
	return res
}

// CompileAll compiles texts in order.
func (c *Compiler) CompileAll(ctx context.Context, texts []string) []Result {
	out := make([]Result, len(texts))
	for i, t := range texts {
		out[i] = c.Compile(ctx, t)
	}
	return out
}

func invalid(text string, err error) *FilterError {
	fe := &FilterError{Kind: KindInvalidFilter, Text: text, Reason: filterengine.ReasonInvalid}
	var se *filterengine.SyntaxError
	if errors.As(err, &se) {
		fe.Reason = se.Reason
		fe.Option = se.Option
	}
	return fe
}

func networkRules(f *filterengine.Filter) []rule.Rule {
	cond := rule.Condition{
		InitiatorDomains:         f.Domains,
		ExcludedInitiatorDomains: f.ExcludedDomains,
	}
	if f.Regexp {
		cond.RegexFilter = f.Pattern
	} else if f.Pattern != "" && f.Pattern != "*" {
		cond.URLFilter = f.Pattern
	}
	if f.MatchCase {
		t := true
		cond.IsURLFilterCaseSensitive = &t
	}
	if f.ThirdParty != nil {
		cond.DomainType = rule.DomainFirstParty
		if *f.ThirdParty {
			cond.DomainType = rule.DomainThirdParty
		}
	}
	for _, ct := range f.ExcludedContentTypes {
		if rt, ok := resourceTypes[ct]; ok {
			cond.ExcludedResourceTypes = append(cond.ExcludedResourceTypes, rt)
		}
	}

	specific := len(f.Domains) > 0
	priority := rule.PriorityGeneric
	if specific {
		priority = rule.PrioritySpecific
	}

	var types []string
	document := false
	for _, ct := range f.ContentTypes {
		if ct == "document" {
			document = true
		}
		if rt, ok := resourceTypes[ct]; ok && !slices.Contains(types, rt) {
			types = append(types, rt)
		}
	}
	if len(f.ContentTypes) > 0 && len(types) == 0 {
		// Only options like popup or elemhide: nothing to enforce here.
		return nil
	}

	if f.Type == filterengine.TypeBlocking {
		cond.ResourceTypes = types
		return []rule.Rule{{
			Priority:  priority,
			Action:    rule.Action{Type: rule.ActionBlock},
			Condition: cond,
		}}
	}

	var out []rule.Rule
	if document {
		allowAll := cond
		allowAll.ResourceTypes = []string{rule.ResourceMainFrame, rule.ResourceSubFrame}
		out = append(out, rule.Rule{
			Priority:  priority + 1,
			Action:    rule.Action{Type: rule.ActionAllowAllRequests},
			Condition: allowAll,
		})
		types = slices.DeleteFunc(types, func(t string) bool { return t == rule.ResourceMainFrame })
		if len(types) == 0 {
			return out
		}
	}

	cond.ResourceTypes = types
	return append(out, rule.Rule{
		Priority:  priority,
		Action:    rule.Action{Type: rule.ActionAllow},
		Condition: cond,
	})
}

// validHostname accepts ASCII hostnames made of LDH labels, optionally
// ending in a wildcard TLD ("example.*") as ABP allows.
func validHostname(host string) bool {
	if host == "" || len(host) > 253 {
		return false
	}
	if ip := net.ParseIP(host); ip != nil {
		return true
	}
	host = strings.TrimSuffix(host, ".*")
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for i := 0; i < len(label); i++ {
			ch := label[i]
			if !(ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9' || ch == '-') {
				return false
			}
		}
	}
	return true
}
