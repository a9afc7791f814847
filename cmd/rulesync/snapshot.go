package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/xraph/rulesync/ownership"
	"github.com/xraph/rulesync/store"
)

type snapshotSummary struct {
	Revision      string                        `json:"revision,omitempty"`
	HighestRuleID int                           `json:"highest_rule_id"`
	Records       int                           `json:"records"`
	Disabled      int                           `json:"disabled"`
	Static        int                           `json:"static"`
	RuleCount     int                           `json:"rule_count"`
	Subscriptions []ownership.SubscriptionState `json:"subscriptions"`
}

func newSnapshotCommand() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print the saved ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(optionsFromContext(ctx))
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck // read only

			state, err := st.LoadLedger(ctx)
			if errors.Is(err, store.ErrNoLedger) {
				state = &ownership.State{}
			} else if err != nil {
				return err
			}

			if full {
				return writeJSON(cmd.OutOrStdout(), state)
			}
			return writeJSON(cmd.OutOrStdout(), summarize(state))
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Print every record instead of a summary")
	return cmd
}

func summarize(st *ownership.State) snapshotSummary {
	s := snapshotSummary{
		Revision:      st.Revision.String(),
		HighestRuleID: st.HighestRuleID,
		Records:       len(st.Records),
		RuleCount:     st.RuleCount(),
		Subscriptions: st.Subscriptions,
	}
	if s.Subscriptions == nil {
		s.Subscriptions = []ownership.SubscriptionState{}
	}
	for _, r := range st.Records {
		if !r.Enabled {
			s.Disabled++
		}
		if r.Static != nil {
			s.Static++
		}
	}
	return s
}
