package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/escort-dispatch/cmd/cli/commands"
	"github.com/jakechorley/escort-dispatch/internal/config"
	"github.com/jakechorley/escort-dispatch/pkg/clients/formsclient"
	"github.com/jakechorley/escort-dispatch/pkg/clients/gmailclient"
	"github.com/jakechorley/escort-dispatch/pkg/clients/sheetsclient"
	"github.com/jakechorley/escort-dispatch/pkg/core/allocator/criteria"
	"github.com/jakechorley/escort-dispatch/pkg/core/availability"
	"github.com/jakechorley/escort-dispatch/pkg/core/conflicts"
	"github.com/jakechorley/escort-dispatch/pkg/core/ids"
	"github.com/jakechorley/escort-dispatch/pkg/core/reconciler"
	"github.com/jakechorley/escort-dispatch/pkg/db"
	"github.com/jakechorley/escort-dispatch/pkg/db/memstore"
	"github.com/jakechorley/escort-dispatch/pkg/lock"
	"github.com/jakechorley/escort-dispatch/pkg/metrics"
	"github.com/jakechorley/escort-dispatch/pkg/postgres"
	"github.com/jakechorley/escort-dispatch/pkg/redis"
	"github.com/jakechorley/escort-dispatch/pkg/sheetssql"
	"github.com/jakechorley/escort-dispatch/pkg/utils/logging"
)

var (
	env     string
	verbose bool
	app     = &commands.AppContext{Ctx: context.Background()}
	closers []func()
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Escort dispatch - assign motorcycle riders to escort requests",
		Long:  `A CLI for recording rider availability, taking escort requests and reconciling rider assignments.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
			if app.Logger != nil {
				_ = app.Logger.Sync()
			}
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&env, "env", "e", "", "Environment (required: test, prod, etc.)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug logs on the console")
	rootCmd.MarkPersistentFlagRequired("env")

	rootCmd.AddCommand(commands.CreateRequestCmd(app))
	rootCmd.AddCommand(commands.NextRequestIDCmd(app))
	rootCmd.AddCommand(commands.ShowRequestCmd(app))
	rootCmd.AddCommand(commands.AssignRidersCmd(app))
	rootCmd.AddCommand(commands.SuggestRidersCmd(app))
	rootCmd.AddCommand(commands.AddAvailabilityCmd(app))
	rootCmd.AddCommand(commands.ShowAvailabilityCmd(app))
	rootCmd.AddCommand(commands.CheckConflictsCmd(app))
	rootCmd.AddCommand(commands.CompleteRequestCmd(app))
	rootCmd.AddCommand(commands.CancelRequestCmd(app))
	rootCmd.AddCommand(commands.UpdateAssignmentCmd(app))
	rootCmd.AddCommand(commands.ReportCmd(app))
	rootCmd.AddCommand(commands.ListRidersCmd(app))
	rootCmd.AddCommand(commands.ImportRidersCmd(app))
	rootCmd.AddCommand(commands.ImportFormAvailabilityCmd(app))
	rootCmd.AddCommand(commands.PublishBoardCmd(app))
	rootCmd.AddCommand(commands.ServeCmd(app))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initApp sets up logger, config, database backend, locks and the reconciler
func initApp() error {
	var err error
	app.Env = env

	app.Logger, err = logging.InitLogger(env, verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.Logger.Info("Starting application", zap.String("environment", env))

	app.Logger.Info("Loading configuration")
	app.Cfg, err = config.LoadWithEnv(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.Logger.Debug("Configuration loaded successfully",
		zap.String("backend", app.Cfg.Backend),
		zap.String("lock_backend", app.Cfg.LockBackend),
		zap.String("conflict_policy", app.Cfg.ConflictPolicy))

	app.SetGoogleClients(googleClients)

	var sequencer ids.Sequencer
	app.Database, sequencer, err = openDatabase()
	if err != nil {
		return err
	}

	locker, sequencer, err := openLocks(sequencer)
	if err != nil {
		return err
	}

	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	dispatchMetrics := metrics.NewDispatchMetrics(app.Registry)

	blackouts, err := app.Cfg.BlackoutRules()
	if err != nil {
		return fmt.Errorf("failed to load blackouts: %w", err)
	}
	policy, err := reconciler.ParsePolicy(app.Cfg.ConflictPolicy)
	if err != nil {
		return err
	}

	app.Resolver = availability.NewResolver(app.Database, app.Logger, availability.WithBlackouts(blackouts...))
	app.Detector = conflicts.NewDetector(app.Database)
	app.Criteria = criteria.Default()
	app.RequestIDs = ids.NewRequestIDs(app.Database, locker, sequencer)
	app.Reconciler = reconciler.New(app.Database, app.Resolver, app.Detector, ids.NewAssignmentIDs(sequencer), app.Logger,
		reconciler.WithPolicy(policy),
		reconciler.WithAttempts(app.Cfg.ReconcileAttempts),
		reconciler.WithLocker(locker),
		reconciler.WithRiderDirectory(app.Database),
		reconciler.WithMetrics(dispatchMetrics),
		reconciler.WithClock(app.Now))

	app.Logger.Info("Application initialized", zap.String("backend", app.Cfg.Backend))
	return nil
}

// openDatabase connects the configured backend. Each backend is also the default ID sequencer.
func openDatabase() (db.Database, ids.Sequencer, error) {
	switch app.Cfg.Backend {
	case "postgres":
		app.Logger.Info("Connecting to postgres")
		pg, err := postgres.NewDB(app.Ctx, app.Cfg.Secrets.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		closers = append(closers, pg.Close)
		applied, err := pg.RunMigrations(app.Ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		if len(applied) > 0 {
			app.Logger.Info("Applied migrations", zap.Strings("files", applied))
		}
		return pg, pg, nil

	case "sheets":
		client, err := app.SheetsClient()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create sheets client: %w", err)
		}

		app.Logger.Info("Initializing database schema")
		schema, err := sheetssql.SchemaFromModels(db.Models()...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create database schema: %w", err)
		}
		app.Logger.Debug("Database schema created", zap.Int("tables", len(schema.Tables)))

		app.Logger.Info("Connecting to database", zap.String("spreadsheet_id", app.Cfg.DatabaseSheetID))
		ssqlDB, err := sheetssql.NewDB(client, app.Cfg.DatabaseSheetID, schema)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		sheetsDB := db.NewDB(ssqlDB)
		return sheetsDB, sheetsDB, nil

	default:
		app.Logger.Warn("Using the in-memory backend; nothing is persisted")
		store := memstore.New()
		return store, store, nil
	}
}

// openLocks picks the lock backend. With redis, assignment IDs also come from a redis counter
// seeded from the highest ID already stored.
func openLocks(fallback ids.Sequencer) (lock.Locker, ids.Sequencer, error) {
	if app.Cfg.LockBackend != "redis" {
		return lock.NewLocal(), fallback, nil
	}

	app.Logger.Info("Connecting to redis")
	client, err := redis.New(app.Ctx, app.Cfg.Secrets.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	closers = append(closers, func() { _ = client.Close() })

	locker, err := lock.NewRedis(client, client.LockPrefix(), app.Cfg.LockTTL, app.Logger)
	if err != nil {
		return nil, nil, err
	}

	existing, err := app.Database.ListAssignments(app.Ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	assignmentIDs := make([]string, 0, len(existing))
	for _, a := range existing {
		assignmentIDs = append(assignmentIDs, a.ID)
	}

	seq := redis.NewSequencer(client)
	if err := seq.Seed(app.Ctx, ids.AssignmentScope, ids.MaxAssignmentNumber(assignmentIDs)); err != nil {
		return nil, nil, fmt.Errorf("failed to seed assignment counter: %w", err)
	}
	return locker, seq, nil
}

// googleClients runs the OAuth flow once and shares the token across the Google clients
func googleClients(ctx context.Context) (*commands.Google, error) {
	app.Logger.Info("Loading OAuth client configuration")
	oauthCfg, err := config.LoadOAuthClientWithEnv(env)
	if err != nil {
		return nil, fmt.Errorf("failed to load OAuth client config: %w", err)
	}

	app.Logger.Info("Initializing sheets client")
	sheets, err := sheetsclient.NewClient(ctx, oauthCfg, env, app.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}

	app.Logger.Info("Initializing gmail client")
	gmail, err := gmailclient.NewClient(ctx, oauthCfg, sheets.Token(), app.Cfg.GmailUserID, app.Cfg.GmailSender)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail client: %w", err)
	}

	app.Logger.Info("Initializing forms client")
	forms, err := formsclient.NewClient(ctx, oauthCfg, sheets.Token())
	if err != nil {
		return nil, fmt.Errorf("failed to create forms client: %w", err)
	}
	return &commands.Google{Sheets: sheets, Gmail: gmail, Forms: forms}, nil
}
