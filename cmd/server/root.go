package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/Harshitk-cp/beliefgraph/internal/config"
	"github.com/Harshitk-cp/beliefgraph/internal/domain"
	"github.com/Harshitk-cp/beliefgraph/internal/metrics"
	"github.com/Harshitk-cp/beliefgraph/internal/service"
	"github.com/Harshitk-cp/beliefgraph/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const rootLongDesc string = `beliefgraph keeps the beliefs of a conversational agent: structured
facts, protected ground truths and attributed opinions, and answers
comparative questions over numeric facts.

Run the HTTP API using:
  beliefgraph serve

Or work with the store directly:
  beliefgraph learn basketball diameter "24 cm"
  beliefgraph compare basketball baseball diameter`

const rootShortDesc string = "Belief store and inference layer"

type rootCommander struct {
	debug   bool
	driver  string
	session string
}

func newRootCmd() *cobra.Command {
	cmder := &rootCommander{}

	cmd := &cobra.Command{
		Use:           "beliefgraph",
		Short:         rootShortDesc,
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return config.Load()
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&cmder.debug, "debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&cmder.driver, "store", "", "Store driver: memory, sqlite or postgres (default from STORE_DRIVER)")
	cmd.PersistentFlags().StringVarP(&cmder.session, "session", "s", "", "Conversation session id")

	// Add subcommands
	cmd.AddCommand(
		newServeCmd(cmder),
		newSeedCmd(cmder),
		newLearnCmd(cmder),
		newAskCmd(cmder),
		newCompareCmd(cmder),
		newDeriveCmd(cmder),
		newMembersCmd(cmder),
		newOpinionsCmd(cmder),
		newRetractCmd(cmder),
		newAuditCmd(cmder),
		newVersionCmd(),
	)

	return cmd
}

// runtimeEnv is everything a command needs to talk to the store.
type runtimeEnv struct {
	logger   *zap.Logger
	store    domain.KnowledgeStore
	gateway  *service.Gateway
	recorder *metrics.Recorder
	vocab    *domain.Vocabulary
	units    *domain.UnitTable
	seeds    *domain.SeedSet
	closers  []func()
}

func (e *runtimeEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func (c *rootCommander) newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	level := config.LogLevel()
	if c.debug {
		level = "debug"
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg.Level = lvl
	return cfg.Build()
}

// open loads the data sets, opens the configured store, optionally asserts
// the seed constants and builds the gateway.
func (c *rootCommander) open(ctx context.Context, autoSeed bool) (*runtimeEnv, error) {
	logger, err := c.newLogger()
	if err != nil {
		return nil, err
	}
	env := &runtimeEnv{logger: logger}
	env.closers = append(env.closers, func() { _ = logger.Sync() })

	if err := env.loadData(); err != nil {
		env.Close()
		return nil, err
	}

	driver := c.driver
	if driver == "" {
		driver = config.StoreDriver()
	}
	if err := env.openStore(ctx, driver); err != nil {
		env.Close()
		return nil, err
	}

	if autoSeed {
		if _, err := env.seed(ctx); err != nil {
			env.Close()
			return nil, err
		}
	}

	env.recorder = metrics.New()
	env.gateway = service.NewGateway(env.store, env.vocab, env.units, logger)
	env.gateway.SetTimeout(config.GatewayTimeout())
	env.gateway.SetMaxDepth(config.ReasoningMaxDepth())
	env.gateway.SetMetrics(env.recorder)
	return env, nil
}

func (e *runtimeEnv) seed(ctx context.Context) (*service.SeedReport, error) {
	report, err := service.NewSeeder(e.store, e.vocab, e.units, e.logger).Seed(ctx, e.seeds)
	if err != nil {
		return nil, fmt.Errorf("seed constants: %w", err)
	}
	return report, nil
}

func (e *runtimeEnv) loadData() error {
	var err error
	if e.vocab, err = domain.DefaultVocabulary(); err != nil {
		return err
	}
	if path := config.VocabularyPath(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read vocabulary: %w", err)
		}
		if err := e.vocab.LoadYAML(data); err != nil {
			return err
		}
		e.logger.Info("loaded extra vocabulary", zap.String("path", path))
	}
	if e.units, err = domain.DefaultUnits(); err != nil {
		return err
	}
	if e.seeds, err = domain.DefaultSeedSet(); err != nil {
		return err
	}
	return nil
}

func (e *runtimeEnv) openStore(ctx context.Context, driver string) error {
	switch driver {
	case "memory":
		e.store = store.NewInMemoryStore(e.units)
	case "sqlite":
		s, err := store.NewSQLiteStore(config.SQLitePath(), e.units)
		if err != nil {
			return err
		}
		e.store = s
		e.closers = append(e.closers, func() { _ = s.Close() })
	case "postgres":
		dbURL := config.DatabaseURL()
		if dbURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		e.closers = append(e.closers, pool.Close)
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("failed to ping database: %w", err)
		}
		s := store.NewPostgresStore(pool, e.units)
		if err := s.Migrate(ctx); err != nil {
			return err
		}
		e.store = s
	default:
		return fmt.Errorf("unknown store driver %q", driver)
	}
	e.logger.Info("store opened", zap.String("driver", driver))
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
