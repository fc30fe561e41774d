package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ideaforge/internal/app"
	"ideaforge/internal/db"
	"ideaforge/internal/domain"
	"ideaforge/internal/engine"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "forge",
		Short: "IdeaForge ledger CLI",
		Long: `IdeaForge keeps four small registries in one local ledger:
- Oracle: a single principal allowed to score ideas; only the current oracle can hand the role on.
- Challenges: created open, closed exactly once.
- Tokens: minted to an owner with a fixed URI; only the owner can transfer.
- Submissions: solutions to a challenge, settled once as accepted or rejected.
Every change is appended to the event log, view it with 'forge log tail'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := db.EnsureWorkspace(viper.GetString("workspace"))
			return err
		},
	}
	root.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	root.PersistentFlags().Bool("json", false, "output JSON")
	root.PersistentFlags().StringP("principal", "p", "", "calling principal")
	_ = viper.BindPFlag("workspace", root.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", root.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("principal", root.PersistentFlags().Lookup("principal"))

	root.AddCommand(initCmd())
	root.AddCommand(oracleCmd())
	root.AddCommand(evaluationCmd())
	root.AddCommand(challengeCmd())
	root.AddCommand(tokenCmd())
	root.AddCommand(submissionCmd())
	root.AddCommand(apiKeyCmd())
	root.AddCommand(logCmd())
	root.AddCommand(serveCmd())
	return root
}

func main() {
	cobra.OnInitialize(initConfig)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		printError(err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("IDEAFORGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// --- helpers ---

func logger() *log.Logger {
	return log.New(os.Stderr, "", log.LstdFlags)
}

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	rt, err := app.Open(ctx, app.Options{Workspace: viper.GetString("workspace"), Logger: logger()})
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
		return fn(ctx, rt.Engine)
	})
}

// caller resolves the acting principal from --principal or IDEAFORGE_PRINCIPAL.
func caller() (domain.Principal, error) {
	p := strings.TrimSpace(viper.GetString("principal"))
	if p == "" {
		return "", errors.New("principal required; pass --principal or set IDEAFORGE_PRINCIPAL")
	}
	return domain.Principal(p), nil
}

func printError(err error) {
	code := engine.StatusCode(err)
	if code == 500 {
		errColor.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	errColor.Fprintf(os.Stderr, "error (%d): %v\n", code, err)
}

func requireID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, errors.New("exactly one id argument required")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", args[0])
	}
	return id, nil
}
