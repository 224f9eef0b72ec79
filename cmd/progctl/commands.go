package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/odin-market/progression/internal/config"
	"github.com/odin-market/progression/internal/logging"
	"github.com/odin-market/progression/internal/progression"
	"github.com/odin-market/progression/internal/simulate"
	"github.com/odin-market/progression/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// app holds what the commands share once the root pre-run has opened the
// store.
type app struct {
	configPath string
	driver     string
	dsn        string
	dataDir    string
	catalog    string
	class      string

	backend     store.Backend
	log         *logrus.Logger
	engine      *progression.Engine
	leaderboard *progression.Leaderboard
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "progctl",
		Short:        "Inspect and drive progression profiles",
		SilenceUsage: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.backend != nil {
				return a.backend.Close()
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Path to config file")
	pf.StringVar(&a.driver, "driver", "", "Store driver override (memory, file, sqlite, postgres)")
	pf.StringVar(&a.dsn, "dsn", "", "Store DSN override")
	pf.StringVar(&a.dataDir, "data-dir", "", "Data directory override")
	pf.StringVar(&a.catalog, "catalog", "", "Catalog YAML override")
	pf.StringVar(&a.class, "class", "vendor", "User class (vendor or customer)")

	root.AddCommand(
		a.eventCmd(),
		a.profileCmd(),
		a.challengesCmd(),
		a.challengeProgressCmd(),
		a.achievementsCmd(),
		a.leaderboardCmd(),
		a.refreshRanksCmd(),
		a.catalogCmd(),
		a.simulateCmd(),
	)
	return root
}

// open loads config, applies flag overrides and builds the engine.
func (a *app) open(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.driver != "" {
		cfg.Storage.Driver = a.driver
	}
	if a.dsn != "" {
		cfg.Storage.DSN = a.dsn
	}
	if a.dataDir != "" {
		cfg.Storage.DataDir = a.dataDir
	}
	if a.catalog != "" {
		cfg.CatalogPath = a.catalog
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.log = log

	catalog := progression.DefaultCatalog()
	if cfg.CatalogPath != "" {
		if catalog, err = progression.LoadCatalog(cfg.CatalogPath); err != nil {
			return err
		}
	}

	a.backend, err = store.Open(cmd.Context(), cfg.Storage)
	if err != nil {
		return err
	}
	a.engine = progression.NewEngine(a.backend, catalog,
		progression.WithLogger(log),
		progression.WithRetryPolicy(progression.RetryPolicy{
			MaxAttempts: cfg.Engine.MaxAttempts,
			BaseBackoff: cfg.Engine.BaseBackoff,
			MaxBackoff:  cfg.Engine.MaxBackoff,
		}),
	)
	a.leaderboard = progression.NewLeaderboard(a.backend, catalog,
		cfg.Leaderboard.DefaultPageSize, cfg.Leaderboard.MaxPageSize)
	return nil
}

func (a *app) key(id string) (progression.ProfileKey, error) {
	class, err := progression.ParseUserClass(a.class)
	if err != nil {
		return progression.ProfileKey{}, err
	}
	return progression.ProfileKey{ID: id, Class: class}, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) eventCmd() *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "event PROFILE_ID ACTION",
		Short: "Process one action for a profile",
		Example: `  progctl event vendor-1 sale_completed --data '{"amount":1500}'
  progctl event shopper-9 review_given --class customer --data '{"rating":5}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd); err != nil {
				return err
			}
			key, err := a.key(args[0])
			if err != nil {
				return err
			}
			if data != "" && !json.Valid([]byte(data)) {
				return fmt.Errorf("--data is not valid JSON")
			}
			res, err := a.engine.ProcessEvent(cmd.Context(), progression.Event{
				ProfileID: key.ID,
				Class:     key.Class,
				Action:    args[1],
				Payload:   progression.NewPayload([]byte(data)),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "Event payload as a JSON object")
	return cmd
}

func (a *app) profileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile PROFILE_ID",
		Short: "Show a profile and its level, creating it if missing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd); err != nil {
				return err
			}
			key, err := a.key(args[0])
			if err != nil {
				return err
			}
			p, info, err := a.engine.GetProfile(cmd.Context(), key)
			if err != nil {
				return err
			}
			return printJSON(cmd, struct {
				*progression.Profile
				LevelInfo progression.LevelInfo `json:"levelInfo"`
			}{p, info})
		},
	}
}

func (a *app) challengesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "challenges PROFILE_ID",
		Short: "Rotate and list the active challenges of a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd); err != nil {
				return err
			}
			key, err := a.key(args[0])
			if err != nil {
				return err
			}
			list, err := a.engine.GetChallenges(cmd.Context(), key, time.Time{})
			if err != nil {
				return err
			}
			return printJSON(cmd, list)
		},
	}
}

func (a *app) challengeProgressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "challenge-progress PROFILE_ID CHALLENGE_ID PROGRESS",
		Short: "Set the absolute progress of an active challenge",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			progress, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("progress: %w", err)
			}
			if err := a.open(cmd); err != nil {
				return err
			}
			key, err := a.key(args[0])
			if err != nil {
				return err
			}
			upd, err := a.engine.UpdateChallenge(cmd.Context(), key, args[1], progress)
			if err != nil {
				return err
			}
			return printJSON(cmd, upd)
		},
	}
}

func (a *app) achievementsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "achievements PROFILE_ID",
		Short: "List the achievements a profile has unlocked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd); err != nil {
				return err
			}
			key, err := a.key(args[0])
			if err != nil {
				return err
			}
			list, err := a.engine.GetAchievements(cmd.Context(), key)
			if err != nil {
				return err
			}
			return printJSON(cmd, list)
		},
	}
}

func (a *app) leaderboardCmd() *cobra.Command {
	var (
		category    string
		page, limit int
	)
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show one page of the leaderboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd); err != nil {
				return err
			}
			res, err := a.leaderboard.Rank(cmd.Context(), progression.ParseMetric(category), page, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().StringVar(&category, "category", "xp", "Ranking metric: xp, sales or revenue")
	cmd.Flags().IntVar(&page, "page", 1, "Page number, starting at 1")
	cmd.Flags().IntVar(&limit, "limit", 0, "Page size (0 uses the configured default)")
	return cmd
}

func (a *app) refreshRanksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-ranks",
		Short: "Recompute the cached global and per-class XP ranks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd); err != nil {
				return err
			}
			n, err := a.leaderboard.RefreshRanks(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ranked %d profiles\n", n)
			return nil
		},
	}
}

func (a *app) catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Work with catalog files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate FILE",
		Short: "Parse and validate a catalog file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := progression.LoadCatalog(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "catalog ok: %d vendor levels, %d customer levels, %d achievements, %d badges, %d challenge templates\n",
				len(c.Levels(progression.ClassVendor)),
				len(c.Levels(progression.ClassCustomer)),
				len(c.Achievements()),
				len(c.Badges()),
				len(c.ChallengeTemplates()),
			)
			return nil
		},
	})
	return cmd
}

func (a *app) simulateCmd() *cobra.Command {
	var (
		profiles, ticks int
		seed            uint64
		interval        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Feed synthetic vendor and customer traffic through the engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if profiles <= 0 || ticks <= 0 {
				return fmt.Errorf("--profiles and --ticks must be positive")
			}
			if err := a.open(cmd); err != nil {
				return err
			}
			gen := simulate.NewGenerator(a.engine, profiles, seed, a.log)
			if interval <= 0 {
				for i := 0; i < ticks; i++ {
					if err := gen.Step(cmd.Context()); err != nil {
						return err
					}
				}
			} else if err := gen.Run(cmd.Context(), interval, ticks); err != nil {
				return err
			}
			return printJSON(cmd, gen.Stats())
		},
	}
	cmd.Flags().IntVar(&profiles, "profiles", 8, "Number of simulated profiles")
	cmd.Flags().IntVar(&ticks, "ticks", 20, "Number of ticks to run")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "Random seed")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Delay between ticks (0 runs back to back)")
	return cmd
}
