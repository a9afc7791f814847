package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/rulesync/ownership"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestReadFilterList(t *testing.T) {
	texts, err := readFilterList("-", strings.NewReader(`[Adblock Plus 2.0]
! Title: test

||ads.example^
  example.com##.banner  
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"||ads.example^", "example.com##.banner"}, texts)

	_, err = readFilterList(filepath.Join(t.TempDir(), "missing.txt"), nil)
	assert.Error(t, err)
}

func TestCompileCommand(t *testing.T) {
	out, err := run(t, "||ads.example^\n||ads.example^\n||bad.example^$bogus\n", "compile", "-")
	require.NoError(t, err)

	var got compileOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 2, got.Filters)
	require.Len(t, got.Rules, 1)
	assert.Equal(t, 1, got.Rules[0].ID)
	assert.Len(t, got.Invalid, 1)

	_, err = run(t, "||bad.example^$bogus\n", "compile", "--strict", "-")
	assert.Error(t, err)
}

func TestSyncAndSnapshot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "easylist.txt"),
		[]byte("||ads1.example^\n||ads2.example^\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "custom.txt"),
		[]byte("||ads2.example^\n||ads3.example^\n"), 0o644))

	cfgPath := filepath.Join(dir, "rulesync.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
quota: 10
log_level: error
subscriptions:
  - id: easylist
    kind: full
    path: easylist.txt
  - id: custom
    kind: diff
    path: custom.txt
`), 0o644))

	out, err := run(t, "", "--config", cfgPath, "sync")
	require.NoError(t, err)

	var got syncOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Updates, 2)
	assert.Equal(t, "full", got.Updates[0].Mode)
	assert.Len(t, got.Updates[0].AddedRuleIDs, 2)
	assert.Equal(t, "diff", got.Updates[1].Mode)
	assert.Len(t, got.Updates[1].AddedRuleIDs, 1)
	assert.Equal(t, 3, got.Usage.Tracked)

	// the memory store does not outlive the process
	out, err = run(t, "", "--config", cfgPath, "snapshot")
	require.NoError(t, err)
	var sum snapshotSummary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, 0, sum.Records)
}

func TestSummarize(t *testing.T) {
	st := &ownership.State{
		HighestRuleID: 4,
		Records: []ownership.Record{
			{Text: "a", RuleIDs: []int{1, 2}, Enabled: true, Owners: []string{"s1"}},
			{Text: "b", Enabled: false, Owners: []string{"s1"}},
			{Text: "c", Enabled: true, Owners: []string{"s2"}, Static: &ownership.StaticRef{RulesetID: "base", RuleIDs: []int{7}}},
		},
	}
	s := summarize(st)
	assert.Equal(t, 3, s.Records)
	assert.Equal(t, 1, s.Disabled)
	assert.Equal(t, 1, s.Static)
	assert.Equal(t, 2, s.RuleCount)
	assert.NotNil(t, s.Subscriptions)
}
