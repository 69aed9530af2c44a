package main

import (
	"fmt"

	"github.com/Harshitk-cp/beliefgraph/internal/buildconfig"
	"github.com/Harshitk-cp/beliefgraph/internal/domain"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if short {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", buildconfig.Version(), buildconfig.Commit())
				return err
			}
			vocab, err := domain.DefaultVocabulary()
			if err != nil {
				return err
			}
			units, err := domain.DefaultUnits()
			if err != nil {
				return err
			}
			seeds, err := domain.DefaultSeedSet()
			if err != nil {
				return err
			}
			return printJSON(cmd, buildconfig.VersionInfo(vocab.Version(), units.Version(), seeds.Version))
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print only the version and commit")
	return cmd
}
