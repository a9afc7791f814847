package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/rulesync/config"
	"github.com/xraph/rulesync/store"
	memstore "github.com/xraph/rulesync/store/memory"
	redisstore "github.com/xraph/rulesync/store/redis"
	memsub "github.com/xraph/rulesync/substrate/memory"
)

type options struct {
	ConfigPath string
	LogLevel   string
}

type optionsKey struct{}

func withOptions(ctx context.Context, o options) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, optionsKey{}, o)
}

func optionsFromContext(ctx context.Context) options {
	o, _ := ctx.Value(optionsKey{}).(options)
	return o
}

// loadConfig reads the configured file, or the defaults when none is set.
func loadConfig(o options) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if o.ConfigPath != "" {
		loaded, err := config.LoadFromFile(o.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverRedis:
		opts, err := goredis.ParseURL(cfg.Store.URL)
		if err != nil {
			return nil, fmt.Errorf("parse store url: %w", err)
		}
		var ropts []redisstore.Option
		if cfg.Store.Prefix != "" {
			ropts = append(ropts, redisstore.WithPrefix(cfg.Store.Prefix))
		}
		if cfg.Store.History > 0 {
			ropts = append(ropts, redisstore.WithHistory(cfg.Store.History))
		}
		return redisstore.New(goredis.NewClient(opts), ropts...), nil
	default:
		return memstore.New(), nil
	}
}

func newSubstrate(cfg *config.Config) *memsub.Substrate {
	opts := []memsub.Option{
		memsub.WithQuota(cfg.Quota),
		memsub.WithSessionRules(cfg.SessionRules),
	}
	for _, r := range cfg.Rulesets {
		opts = append(opts, memsub.WithRuleset(r.ID, r.RuleIDs, r.Enabled))
	}
	return memsub.New(opts...)
}

// readFilterList reads one filter per line, skipping blank lines, "!"
// comments and "[Adblock ...]" headers. "-" reads stdin.
func readFilterList(path string, stdin io.Reader) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var texts []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "!") || strings.HasPrefix(line, "[") {
			continue
		}
		texts = append(texts, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return texts, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
