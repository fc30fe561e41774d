package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ideaforge/internal/app"
	"ideaforge/internal/config"
	"ideaforge/internal/db"
	"ideaforge/internal/domain"
	"ideaforge/internal/events"
	"ideaforge/internal/repo"
	"ideaforge/internal/server"
)

func initCmd() *cobra.Command {
	var admin string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create ideaforge.yml and the ledger in the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				warnColor.Printf("%s already exists, keeping it (use --force to overwrite)\n", path)
			} else {
				if err := os.WriteFile(path, []byte(config.GenerateDefault(admin)), 0o644); err != nil {
					return err
				}
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				okColor.Printf("ledger ready at %s (oracle %s)\n", db.Path(workspace), rt.Oracle)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&admin, "admin", config.DefaultAdmin, "bootstrap oracle principal")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing ideaforge.yml")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "API keys for the HTTP server"}

	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key bound to --principal",
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := caller()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				secret := "ifk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
				key := domain.APIKey{
					ID:        uuid.NewString(),
					Principal: who,
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := rt.Engine.Repo.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "principal": who, "key": secret})
				}
				fmt.Printf("id:  %s\nkey: %s\n", key.ID, secret)
				warnColor.Println("store the key now; only its hash is kept")
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List API keys (all, or for --principal)",
		RunE: func(cmd *cobra.Command, args []string) error {
			who := domain.Principal(strings.TrimSpace(viper.GetString("principal")))
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				keys, err := rt.Engine.Repo.ListAPIKeys(ctx, who)
				if err != nil {
					return err
				}
				return renderAPIKeys(keys)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Engine.Repo.DeleteAPIKey(ctx, args[0]); err != nil {
					return err
				}
				okColor.Printf("revoked %s\n", args[0])
				return nil
			})
		},
	})
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every committed change is appended here, in the same transaction as the change itself.",
	}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	var registry string
	var follow bool
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Registry = domain.Registry(registry)
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.Repo.LatestEvents(ctx, f)
				if err != nil {
					return err
				}
				if err := renderEvents(items); err != nil {
					return err
				}
				if !follow {
					return nil
				}
				return followEvents(ctx, rt, f)
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&registry, "registry", "", "registry filter (oracle|challenge|token|submission)")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().Int64Var(&f.EntityID, "entity-id", 0, "entity id filter")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new events")
	return cmd
}

// followEvents streams new events from Redis when a channel is configured,
// otherwise it polls the ledger.
func followEvents(ctx context.Context, rt *app.Runtime, f repo.EventFilters) error {
	match := func(registry, evtType string, entityID int64) bool {
		return (f.Registry == "" || string(f.Registry) == registry) &&
			(f.Type == "" || f.Type == evtType) &&
			(f.EntityID == 0 || f.EntityID == entityID)
	}
	if rt.Publisher != nil {
		stream, err := rt.Publisher.Subscribe(ctx)
		if err != nil {
			return err
		}
		for evt := range stream {
			if match(evt.Registry, evt.Type, evt.EntityID) {
				fmt.Printf("%d %s %s %s/%d %s %s\n", evt.ID, evt.TS, evt.Type, evt.Registry, evt.EntityID, evt.Actor, string(evt.Payload))
			}
		}
		return nil
	}
	cursor, err := rt.Engine.Repo.LatestEventID(ctx)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		items, err := rt.Engine.Repo.EventsAfter(ctx, 100, cursor)
		if err != nil {
			return err
		}
		for _, evt := range items {
			cursor = evt.ID
			if match(string(evt.Registry), evt.Type, evt.EntityID) {
				w := events.ToWire(evt)
				fmt.Printf("%d %s %s %s/%d %s %s\n", w.ID, w.TS, w.Type, w.Registry, w.EntityID, w.Actor, string(w.Payload))
			}
		}
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				cfg := rt.Config
				if !cmd.Flags().Changed("addr") && cfg.Server.Addr != "" {
					addr = cfg.Server.Addr
				}
				if !cmd.Flags().Changed("base-path") && cfg.Server.BasePath != "" {
					basePath = cfg.Server.BasePath
				}
				authCfg := server.AuthConfig{
					JWTSecret:            viper.GetString("jwt-secret"),
					AllowPrincipalHeader: cfg.Server.AllowPrincipalHeader,
					Logger:               rt.Engine.Logger,
				}
				if authCfg.JWTSecret == "" {
					return fmt.Errorf("IDEAFORGE_JWT_SECRET is required for bearer auth")
				}
				handler, err := server.New(server.Config{Engine: rt.Engine, BasePath: basePath, Auth: authCfg})
				if err != nil {
					return err
				}
				server.StartWebhookDispatcher(ctx, rt.Engine, rt.Engine.Logger)
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				rt.Engine.Logger.Printf("[INFO] serving IdeaForge API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().String("jwt-secret", "", "HS256 secret for bearer tokens (or IDEAFORGE_JWT_SECRET)")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}
