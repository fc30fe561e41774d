package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"ideaforge/internal/domain"
	"ideaforge/internal/engine"
	"ideaforge/internal/repo"
)

func oracleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oracle",
		Short: "Show or rotate the oracle",
		Long:  "The oracle is the only principal allowed to record idea evaluations. It starts as ledger.admin from ideaforge.yml.",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the current oracle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetOracle(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"oracle": p})
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <principal>",
		Short: "Hand the oracle role to another principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := caller()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.SetOracle(ctx, who, domain.Principal(args[0]))
				if err != nil {
					return err
				}
				okColor.Printf("oracle is now %s\n", p)
				return nil
			})
		},
	})
	return cmd
}

func evaluationCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "evaluation", Short: "Idea evaluations recorded by the oracle"}

	var score int64
	var feedback string
	set := &cobra.Command{
		Use:   "set <idea-id>",
		Short: "Record or overwrite the evaluation of an idea",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ideaID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid idea id %q", args[0])
			}
			if score < 0 {
				return fmt.Errorf("%w: score must be non-negative", engine.ErrInvalidArgument)
			}
			who, err := caller()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ev, err := e.Evaluate(ctx, who, ideaID, score, feedback)
				if err != nil {
					return err
				}
				return printJSONOrTable(ev)
			})
		},
	}
	set.Flags().Int64Var(&score, "score", 0, "score")
	set.Flags().StringVar(&feedback, "feedback", "", "feedback text")
	_ = set.MarkFlagRequired("score")
	cmd.AddCommand(set)

	cmd.AddCommand(&cobra.Command{
		Use:   "show <idea-id>",
		Short: "Show the evaluation of an idea",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ideaID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid idea id %q", args[0])
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ev, err := e.GetEvaluation(ctx, ideaID)
				if err != nil {
					return err
				}
				return printJSONOrTable(ev)
			})
		},
	})

	var f repo.ListFilters
	list := &cobra.Command{
		Use:   "list",
		Short: "List evaluations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListEvaluations(ctx, f)
				if err != nil {
					return err
				}
				return renderEvaluations(items)
			})
		},
	}
	addListFlags(list, &f)
	cmd.AddCommand(list)
	return cmd
}

func challengeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "challenge", Short: "Challenges: open -> closed"}

	var opts engine.ChallengeCreateOptions
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an open challenge",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Reward < 0 {
				return fmt.Errorf("%w: reward must be non-negative", engine.ErrInvalidArgument)
			}
			who, err := caller()
			if err != nil {
				return err
			}
			opts.Creator = who
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateChallenge(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	create.Flags().StringVar(&opts.Title, "title", "", "title")
	create.Flags().StringVar(&opts.Description, "description", "", "description")
	create.Flags().Int64Var(&opts.Reward, "reward", 0, "reward")
	_ = create.MarkFlagRequired("title")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "close <id>",
		Short: "Close an open challenge",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := requireID(args)
			if err != nil {
				return err
			}
			who, _ := caller()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CloseChallenge(ctx, who, id)
				if err != nil {
					return err
				}
				okColor.Printf("challenge %d %s\n", c.ID, c.Status)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a challenge",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := requireID(args)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.GetChallenge(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	})

	var f repo.ListFilters
	list := &cobra.Command{
		Use:   "list",
		Short: "List challenges",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListChallenges(ctx, f)
				if err != nil {
					return err
				}
				return renderChallenges(items)
			})
		},
	}
	addListFlags(list, &f)
	list.Flags().StringVar(&f.Status, "status", "", "status filter (open|closed)")
	cmd.AddCommand(list)
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "Owned tokens with a fixed metadata URI"}

	var uri string
	mint := &cobra.Command{
		Use:   "mint <recipient>",
		Short: "Mint a token to a recipient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			who, _ := caller()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Mint(ctx, who, domain.Principal(args[0]), uri)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	mint.Flags().StringVar(&uri, "uri", "", "metadata URI")
	cmd.AddCommand(mint)

	cmd.AddCommand(&cobra.Command{
		Use:   "transfer <id> <recipient>",
		Short: "Transfer a token you own",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := requireID(args[:1])
			if err != nil {
				return err
			}
			who, err := caller()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Transfer(ctx, id, who, domain.Principal(args[1]))
				if err != nil {
					return err
				}
				okColor.Printf("token %d now owned by %s\n", t.ID, t.Owner)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a token",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := requireID(args)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetToken(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "last-id",
		Short: "Show the last minted token ID",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id, err := e.LastTokenID(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"last_id": id})
			})
		},
	})

	var f repo.ListFilters
	var owner string
	list := &cobra.Command{
		Use:   "list",
		Short: "List tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Owner = domain.Principal(owner)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListTokens(ctx, f)
				if err != nil {
					return err
				}
				return renderTokens(items)
			})
		},
	}
	addListFlags(list, &f)
	list.Flags().StringVar(&owner, "owner", "", "owner filter")
	cmd.AddCommand(list)
	return cmd
}

func submissionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "submission", Short: "Challenge submissions: pending -> accepted|rejected"}

	var challengeID int64
	var content string
	submit := &cobra.Command{
		Use:   "submit",
		Short: "Submit a solution",
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := caller()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.SubmitSolution(ctx, who, challengeID, content)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	submit.Flags().Int64Var(&challengeID, "challenge", 0, "challenge id")
	submit.Flags().StringVar(&content, "content", "", "solution content")
	_ = submit.MarkFlagRequired("challenge")
	cmd.AddCommand(submit)

	cmd.AddCommand(&cobra.Command{
		Use:   "evaluate <id> <accepted|rejected>",
		Short: "Settle a pending submission",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := requireID(args[:1])
			if err != nil {
				return err
			}
			status, err := domain.ParseSubmissionStatus(args[1])
			if err != nil {
				return fmt.Errorf("%w: %v", engine.ErrInvalidArgument, err)
			}
			who, _ := caller()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.EvaluateSubmission(ctx, who, id, status)
				if err != nil {
					return err
				}
				fmt.Printf("submission %d %s\n", s.ID, submissionStatus(s.Status))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a submission",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := requireID(args)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.GetSubmission(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	})

	var f repo.ListFilters
	list := &cobra.Command{
		Use:   "list",
		Short: "List submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListSubmissions(ctx, f)
				if err != nil {
					return err
				}
				return renderSubmissions(items)
			})
		},
	}
	addListFlags(list, &f)
	list.Flags().Int64Var(&f.ChallengeID, "challenge", 0, "challenge filter")
	list.Flags().StringVar(&f.Status, "status", "", "status filter (pending|accepted|rejected)")
	cmd.AddCommand(list)
	return cmd
}

func addListFlags(cmd *cobra.Command, f *repo.ListFilters) {
	cmd.Flags().Int64Var(&f.AfterID, "after", 0, "only records with an ID after this one")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "maximum records (0 = all)")
}
