package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/xraph/rulesync"
	"github.com/xraph/rulesync/budget"
	"github.com/xraph/rulesync/config"
	"github.com/xraph/rulesync/ownership"
	"github.com/xraph/rulesync/staticrules"
	"github.com/xraph/rulesync/subscription"
)

type syncOutput struct {
	Updates []*rulesync.UpdateResult `json:"updates"`
	Failed  map[string]string        `json:"failed,omitempty"`
	Usage   rulesync.Usage           `json:"usage"`
}

func newSyncCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile configured subscriptions",
		Long: `Loads the ledger from the configured store, reconciles every configured
subscription against an in-process substrate and saves the ledger back.
Full subscriptions replace their list; diff subscriptions apply the delta
between the list file and what the ledger holds.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(optionsFromContext(ctx))
			if err != nil {
				return err
			}

			e, err := newEngine(cfg, cmd)
			if err != nil {
				return err
			}
			if err := e.Start(ctx); err != nil {
				return err
			}
			defer e.Stop() //nolint:errcheck // flushed explicitly below

			out := syncOutput{Failed: map[string]string{}}
			for _, sc := range cfg.Subscriptions {
				res, err := syncOne(ctx, e, sc, cmd)
				if err != nil {
					out.Failed[sc.ID] = err.Error()
					continue
				}
				if res != nil {
					out.Updates = append(out.Updates, res)
				}
			}

			if err := e.Flush(ctx); err != nil {
				return fmt.Errorf("save ledger: %w", err)
			}
			if out.Usage, err = e.Usage(ctx); err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if len(out.Failed) > 0 {
				return fmt.Errorf("%d subscriptions failed", len(out.Failed))
			}
			return nil
		},
	}
	return cmd
}

func newEngine(cfg *config.Config, cmd *cobra.Command) (*rulesync.Engine, error) {
	policy, err := budget.ParsePolicy(cfg.BudgetPolicy)
	if err != nil {
		return nil, err
	}
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	opts := []rulesync.Option{
		rulesync.WithLogger(newLogger(cfg.LogLevel, cmd.ErrOrStderr())),
		rulesync.WithBudgetPolicy(policy),
		rulesync.WithSaveDebounce(0),
	}
	if cfg.MappingDir != "" {
		opts = append(opts, rulesync.WithStaticLoader(staticrules.FileLoader{Dir: cfg.MappingDir}))
	}
	return rulesync.New(st, newSubstrate(cfg), opts...), nil
}

func syncOne(ctx context.Context, e *rulesync.Engine, sc config.SubscriptionConfig, cmd *cobra.Command) (*rulesync.UpdateResult, error) {
	sub := sc.Subscription()

	switch sub.Kind {
	case subscription.KindStatic:
		if sub.Enabled {
			return nil, e.EnableRuleset(ctx, sub.RulesetID)
		}
		return nil, e.DisableRuleset(ctx, sub.RulesetID)

	case subscription.KindFull:
		texts, err := readFilterList(sc.Path, cmd.InOrStdin())
		if err != nil {
			return nil, err
		}
		return e.FullUpdate(ctx, sub, texts)

	case subscription.KindDiff:
		texts, err := readFilterList(sc.Path, cmd.InOrStdin())
		if err != nil {
			return nil, err
		}
		sub.Filters = ownedBy(e.Snapshot(), sub.ID)
		return e.DiffUpdate(ctx, sub, diffOf(e, sub.Filters, texts))
	}
	return nil, fmt.Errorf("%w: %s", rulesync.ErrUnsupportedKind, sub.Kind)
}

func ownedBy(st *ownership.State, subID string) []string {
	var texts []string
	for _, r := range st.Records {
		if slices.Contains(r.Owners, subID) {
			texts = append(texts, r.Text)
		}
	}
	return texts
}

func diffOf(e *rulesync.Engine, have, want []string) subscription.Diff {
	c := e.Compiler()
	wanted := make(map[string]bool, len(want))
	var d subscription.Diff
	for _, t := range want {
		t = c.Normalize(t)
		if wanted[t] {
			continue
		}
		wanted[t] = true
		if !slices.Contains(have, t) {
			d.Added = append(d.Added, t)
		}
	}
	for _, t := range have {
		if !wanted[t] {
			d.Removed = append(d.Removed, t)
		}
	}
	return d
}
