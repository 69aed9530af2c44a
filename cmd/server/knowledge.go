package main

import (
	"context"
	"fmt"

	"github.com/Harshitk-cp/beliefgraph/internal/service"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// withSession opens the store and runs fn inside the session chosen by
// --session.
func (c *rootCommander) withSession(ctx context.Context, fn func(s *service.Session, env *runtimeEnv) error) error {
	env, err := c.open(ctx, true)
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(env.gateway.Session(c.session), env)
}

type learnCommander struct {
	unit   string
	source string
}

const learnLongDesc string = `Learn a triple. Numeric relations accept "7.5 cm" or a number with --unit.

Examples:
  beliefgraph learn baseball diameter "7.5 cm"
  beliefgraph learn basketball diameter 24 --unit cm
  beliefgraph learn user_01 has_opinion "dogs are better than cats"`

func newLearnCmd(root *rootCommander) *cobra.Command {
	cmder := &learnCommander{}

	cmd := &cobra.Command{
		Use:   "learn SUBJECT RELATION OBJECT",
		Short: "Learn a triple",
		Long:  learnLongDesc,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := service.Candidate{
				Subject:  args[0],
				Relation: args[1],
				Text:     args[2],
				Unit:     cmder.unit,
				Source:   cmder.source,
			}
			return root.withSession(cmd.Context(), func(s *service.Session, _ *runtimeEnv) error {
				res, err := s.Learn(cmd.Context(), c)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}

	cmd.Flags().StringVarP(&cmder.unit, "unit", "u", "", "Unit of a numeric object")
	cmd.Flags().StringVar(&cmder.source, "source", "", "Provenance tag (default user_<session>)")

	return cmd
}

func newAskCmd(root *rootCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "ask SUBJECT [RELATION]",
		Short: "List the current beliefs about a subject",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			relation := ""
			if len(args) == 2 {
				relation = args[1]
			}
			return root.withSession(cmd.Context(), func(s *service.Session, _ *runtimeEnv) error {
				facts, err := s.AskFact(cmd.Context(), args[0], relation)
				if err != nil {
					return err
				}
				return printJSON(cmd, facts)
			})
		},
	}
}

func newCompareCmd(root *rootCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "compare A B RELATION",
		Short: "Compare a numeric relation between two subjects",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withSession(cmd.Context(), func(s *service.Session, _ *runtimeEnv) error {
				cmp, err := s.AskComparative(cmd.Context(), args[0], args[1], args[2])
				if err != nil {
					return err
				}
				return printJSON(cmd, cmp)
			})
		},
	}
}

func newDeriveCmd(root *rootCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "derive SUBJECT RELATION",
		Short: "Resolve a numeric relation, inheriting through instance_of",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withSession(cmd.Context(), func(s *service.Session, _ *runtimeEnv) error {
				fact, err := s.Derive(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if fact == nil {
					return fmt.Errorf("no %s known for %s", args[1], args[0])
				}
				return printJSON(cmd, fact)
			})
		},
	}
}

func newMembersCmd(root *rootCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "members CLASS",
		Short: "List the subjects classified under a class, subclasses included",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withSession(cmd.Context(), func(s *service.Session, _ *runtimeEnv) error {
				members, err := s.Members(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, members)
			})
		},
	}
}

func newOpinionsCmd(root *rootCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "opinions [TOPIC]",
		Short: "List attributed opinions about a topic",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic := ""
			if len(args) == 1 {
				topic = args[0]
			}
			return root.withSession(cmd.Context(), func(s *service.Session, _ *runtimeEnv) error {
				ops, err := s.AskOpinion(cmd.Context(), topic)
				if err != nil {
					return err
				}
				return printJSON(cmd, ops)
			})
		},
	}
}

func newRetractCmd(root *rootCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "retract ID",
		Short: "Retract a learned triple",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid id: %w", err)
			}
			return root.withSession(cmd.Context(), func(s *service.Session, _ *runtimeEnv) error {
				if err := s.Retract(cmd.Context(), id); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "retracted %s\n", id)
				return err
			})
		},
	}
}

func newAuditCmd(root *rootCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "audit SUBJECT",
		Short: "Show every belief and rejected write about a subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withSession(cmd.Context(), func(_ *service.Session, env *runtimeEnv) error {
				report, err := env.gateway.Audit(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, report)
			})
		},
	}
}
