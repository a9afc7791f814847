package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/rulesync/compiler"
	"github.com/xraph/rulesync/filterengine/abp"
	"github.com/xraph/rulesync/rule"
)

type compileOutput struct {
	Filters int                     `json:"filters"`
	Rules   []rule.Rule             `json:"rules"`
	Invalid []*compiler.FilterError `json:"invalid,omitempty"`
}

func newCompileCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "compile [file...]",
		Short: "Compile filter lists into rules",
		Long: `Compiles each filter of the given lists ("-" for stdin) and prints the
resulting rules as JSON. Rule ids are assigned sequentially from 1.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := compiler.New(abp.New(), nil)

			out := compileOutput{Rules: []rule.Rule{}}
			seen := make(map[string]bool)
			next := 1
			for _, path := range args {
				texts, err := readFilterList(path, cmd.InOrStdin())
				if err != nil {
					return err
				}
				for _, text := range texts {
					text = c.Normalize(text)
					if seen[text] {
						continue
					}
					seen[text] = true
					out.Filters++

					res := c.Compile(ctx, text)
					if !res.OK() {
						out.Invalid = append(out.Invalid, res.Err)
						continue
					}
					for _, r := range res.Rules {
						r.ID = next
						next++
						out.Rules = append(out.Rules, r)
					}
				}
			}

			if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if strict && len(out.Invalid) > 0 {
				return fmt.Errorf("%d invalid filters", len(out.Invalid))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when any filter is invalid")
	return cmd
}
