package abp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/rulesync/filterengine"
)

func TestNormalize(t *testing.T) {
	e := New()
	tests := []struct {
		in, want string
	}{
		{"  ||ads.example ^  ", "||ads.example^"},
		{"example.com, foo.com ##  .banner div ", "example.com,foo.com##.banner div"},
		{"! Title: my list ", "! Title: my list"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.Normalize(tt.in), tt.in)
	}
}

func TestParseNetwork(t *testing.T) {
	e := New()

	f, err := e.Parse("||ads.example^$script,third-party,domain=a.com|~b.com")
	require.NoError(t, err)
	assert.Equal(t, filterengine.TypeBlocking, f.Type)
	assert.Equal(t, "||ads.example^", f.Pattern)
	assert.Equal(t, []string{"script"}, f.ContentTypes)
	require.NotNil(t, f.ThirdParty)
	assert.True(t, *f.ThirdParty)
	assert.Equal(t, []string{"a.com"}, f.Domains)
	assert.Equal(t, []string{"b.com"}, f.ExcludedDomains)
	assert.Equal(t, []string{"a.com", "b.com"}, e.DomainsOf(f))
	assert.Equal(t, []string{"script", "third-party", "domain"}, f.Options)

	f, err = e.Parse("@@||good.example^$document,~image")
	require.NoError(t, err)
	assert.Equal(t, filterengine.TypeAllowing, f.Type)
	assert.Equal(t, []string{"document"}, f.ContentTypes)
	assert.Equal(t, []string{"image"}, f.ExcludedContentTypes)

	f, err = e.Parse("||first.example^$~third-party,match-case")
	require.NoError(t, err)
	require.NotNil(t, f.ThirdParty)
	assert.False(t, *f.ThirdParty)
	assert.True(t, f.MatchCase)
}

func TestParseRegexp(t *testing.T) {
	e := New()

	f, err := e.Parse("/banner[0-9]+/")
	require.NoError(t, err)
	assert.True(t, f.Regexp)
	assert.Equal(t, "banner[0-9]+", f.Pattern)
}

func TestSplitOptions(t *testing.T) {
	pattern, options := splitOptions("/adserver$/")
	assert.Equal(t, "/adserver$/", pattern)
	assert.Empty(t, options)

	pattern, options = splitOptions("||ads.example^$script")
	assert.Equal(t, "||ads.example^", pattern)
	assert.Equal(t, "script", options)
}

func TestParseElemHide(t *testing.T) {
	e := New()

	f, err := e.Parse("example.com,~sub.example.com##.ad")
	require.NoError(t, err)
	assert.Equal(t, filterengine.TypeElemHide, f.Type)
	assert.Equal(t, ".ad", f.Selector)
	assert.Equal(t, []string{"example.com"}, f.Domains)
	assert.Equal(t, []string{"sub.example.com"}, f.ExcludedDomains)

	f, err = e.Parse("example.com#@#.ad")
	require.NoError(t, err)
	assert.Equal(t, filterengine.TypeElemHideException, f.Type)

	_, err = e.Parse("example.com##")
	assert.Error(t, err)
}

func TestParseComment(t *testing.T) {
	f, err := New().Parse("! comment")
	require.NoError(t, err)
	assert.Equal(t, filterengine.TypeComment, f.Type)
	assert.False(t, f.Type.IsNetwork())
}

func TestParseErrors(t *testing.T) {
	e := New()

	_, err := e.Parse("")
	var se *filterengine.SyntaxError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, filterengine.ReasonInvalid, se.Reason)

	_, err = e.Parse("||bad.example^$bogus")
	require.True(t, errors.As(err, &se))
	assert.Equal(t, filterengine.ReasonUnknownOption, se.Reason)
	assert.Equal(t, "bogus", se.Option)

	_, err = e.Parse("||bad.example^$script=1")
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "script", se.Option)
}

func TestEnabledState(t *testing.T) {
	e := New(WithDisabled(" ||ads.example^ "))
	assert.False(t, e.IsEnabled("||ads.example^"))
	assert.True(t, e.IsEnabled("||other.example^"))

	e.SetEnabled("||ads.example^", true)
	assert.True(t, e.IsEnabled("||ads.example^"))

	e.SetEnabled("||other.example^", false)
	assert.False(t, e.IsEnabled("||other.example^"))
}
