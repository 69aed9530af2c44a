package main

import (
	"github.com/spf13/cobra"
)

const seedLongDesc string = `Assert the built-in ground truths into the configured store.

Constants already present are left untouched, so running seed twice is
harmless.

Examples:
  beliefgraph seed
  beliefgraph seed --store postgres`

func newSeedCmd(root *rootCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the immutable constants",
		Long:  seedLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := root.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer env.Close()

			report, err := env.seed(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
}
