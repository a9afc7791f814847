package compiler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/rulesync/filterengine"
	"github.com/xraph/rulesync/filterengine/abp"
	"github.com/xraph/rulesync/rule"
)

type regexFunc func(pattern string) (bool, error)

func (f regexFunc) IsRegexSupported(_ context.Context, pattern string) (bool, error) {
	return f(pattern)
}

func TestCompileBlocking(t *testing.T) {
	c := New(abp.New(), nil)

	res := c.Compile(context.Background(), "||ads.example^$script,domain=a.com")
	require.True(t, res.OK())
	assert.True(t, res.Enabled)
	require.Len(t, res.Rules, 1)

	r := res.Rules[0]
	assert.Equal(t, 0, r.ID)
	assert.Equal(t, rule.PrioritySpecific, r.Priority)
	assert.Equal(t, rule.ActionBlock, r.Action.Type)
	assert.Equal(t, "||ads.example^", r.Condition.URLFilter)
	assert.Equal(t, []string{rule.ResourceScript}, r.Condition.ResourceTypes)
	assert.Equal(t, []string{"a.com"}, r.Condition.InitiatorDomains)
}

func TestCompileThirdPartyAndCase(t *testing.T) {
	c := New(abp.New(), nil)

	res := c.Compile(context.Background(), "||tracker.example^$third-party,match-case,~image")
	require.True(t, res.OK())
	require.Len(t, res.Rules, 1)

	cond := res.Rules[0].Condition
	assert.Equal(t, rule.DomainThirdParty, cond.DomainType)
	require.NotNil(t, cond.IsURLFilterCaseSensitive)
	assert.True(t, *cond.IsURLFilterCaseSensitive)
	assert.Equal(t, []string{rule.ResourceImage}, cond.ExcludedResourceTypes)
	assert.Equal(t, rule.PriorityGeneric, res.Rules[0].Priority)
}

func TestCompileDocumentAllowlist(t *testing.T) {
	c := New(abp.New(), nil)

	res := c.Compile(context.Background(), "@@||good.example^$document")
	require.True(t, res.OK())
	require.Len(t, res.Rules, 1)
	assert.Equal(t, rule.ActionAllowAllRequests, res.Rules[0].Action.Type)
	assert.Equal(t, rule.PriorityGenericAllowAll, res.Rules[0].Priority)
	assert.Equal(t, []string{rule.ResourceMainFrame, rule.ResourceSubFrame}, res.Rules[0].Condition.ResourceTypes)

	res = c.Compile(context.Background(), "@@||good.example^$document,script")
	require.True(t, res.OK())
	require.Len(t, res.Rules, 2)
	assert.Equal(t, rule.ActionAllow, res.Rules[1].Action.Type)
	assert.Equal(t, []string{rule.ResourceScript}, res.Rules[1].Condition.ResourceTypes)
}

func TestCompileWithoutNetworkRules(t *testing.T) {
	c := New(abp.New(), nil)

	res := c.Compile(context.Background(), "example.com##.banner")
	assert.True(t, res.OK())
	assert.Empty(t, res.Rules)

	res = c.Compile(context.Background(), "||popup.example^$popup")
	assert.True(t, res.OK())
	assert.Empty(t, res.Rules)
}

func TestCompileInvalid(t *testing.T) {
	c := New(abp.New(), nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		text   string
		kind   ErrorKind
		reason string
		option string
		domain string
	}{
		{name: "comment", text: "! list title", kind: KindInvalidFilter, reason: filterengine.ReasonInvalid},
		{name: "unknown option", text: "||ads.example^$bogus", kind: KindInvalidFilter, reason: filterengine.ReasonUnknownOption, option: "bogus"},
		{name: "unsupported option", text: "||ads.example^$csp=script-src", kind: KindInvalidFilter, reason: filterengine.ReasonUnknownOption, option: "csp"},
		{name: "bad domain", text: "||ads.example^$domain=bad_host.com", kind: KindInvalidDomain, domain: "bad_host.com"},
		{name: "bad elemhide domain", text: "-x.com##.ad", kind: KindInvalidDomain, domain: "-x.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Compile(ctx, tt.text)
			require.False(t, res.OK())
			assert.Equal(t, tt.kind, res.Err.Kind)
			assert.Equal(t, tt.text, res.Err.Text)
			assert.Equal(t, tt.reason, res.Err.Reason)
			assert.Equal(t, tt.option, res.Err.Option)
			assert.Equal(t, tt.domain, res.Err.Domain)
			assert.NotEmpty(t, res.Err.Error())
			assert.Empty(t, res.Rules)
		})
	}
}

func TestCompileRegexSupport(t *testing.T) {
	ctx := context.Background()

	c := New(abp.New(), regexFunc(func(string) (bool, error) { return false, nil }))
	res := c.Compile(ctx, "/banner[0-9]+/")
	require.False(t, res.OK())
	assert.Equal(t, filterengine.ReasonInvalidRegexp, res.Err.Reason)

	c = New(abp.New(), regexFunc(func(string) (bool, error) { return false, errors.New("boom") }))
	assert.False(t, c.Compile(ctx, "/banner[0-9]+/").OK())

	c = New(abp.New(), regexFunc(func(string) (bool, error) { return true, nil }))
	res = c.Compile(ctx, "/banner[0-9]+/")
	require.True(t, res.OK())
	require.Len(t, res.Rules, 1)
	assert.Equal(t, "banner[0-9]+", res.Rules[0].Condition.RegexFilter)
	assert.Empty(t, res.Rules[0].Condition.URLFilter)
}

func TestCompileDisabled(t *testing.T) {
	c := New(abp.New(abp.WithDisabled("||ads.example^")), nil)

	res := c.Compile(context.Background(), "||ads.example^")
	assert.True(t, res.OK())
	assert.False(t, res.Enabled)
	assert.Empty(t, res.Rules)
}

func TestCompileAll(t *testing.T) {
	c := New(abp.New(), nil)
	out := c.CompileAll(context.Background(), []string{"||a.example^", "||b.example^$bogus"})
	require.Len(t, out, 2)
	assert.True(t, out[0].OK())
	assert.False(t, out[1].OK())
}

func TestValidHostname(t *testing.T) {
	tests := map[string]bool{
		"example.com":     true,
		"sub.example.com": true,
		"example.*":       true,
		"1.2.3.4":         true,
		"xn--80ak6aa92e":  true,
		"":                false,
		"-bad.com":        false,
		"bad-.com":        false,
		"a..b":            false,
		"bad_host.com":    false,
	}
	for host, want := range tests {
		assert.Equal(t, want, validHostname(host), host)
	}
}
