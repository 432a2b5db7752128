package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/gamesignal/gamesignal-backend/internal/clients/llm"
	"github.com/gamesignal/gamesignal-backend/internal/clients/reddit"
	"github.com/gamesignal/gamesignal-backend/internal/clients/redisbus"
	"github.com/gamesignal/gamesignal-backend/internal/config"
	"github.com/gamesignal/gamesignal-backend/internal/contextagg"
	"github.com/gamesignal/gamesignal-backend/internal/data/db"
	intelrepo "github.com/gamesignal/gamesignal-backend/internal/data/repos/intel"
	listeningrepo "github.com/gamesignal/gamesignal-backend/internal/data/repos/listening"
	socialrepo "github.com/gamesignal/gamesignal-backend/internal/data/repos/social"
	listeningtypes "github.com/gamesignal/gamesignal-backend/internal/domain/listening"
	"github.com/gamesignal/gamesignal-backend/internal/listener"
	"github.com/gamesignal/gamesignal-backend/internal/observability"
	"github.com/gamesignal/gamesignal-backend/internal/platform/envutil"
	"github.com/gamesignal/gamesignal-backend/internal/platform/logger"
	"github.com/gamesignal/gamesignal-backend/internal/scheduler"
	"github.com/gamesignal/gamesignal-backend/internal/scrape"
	"github.com/gamesignal/gamesignal-backend/internal/scrape/discovery"
	"github.com/gamesignal/gamesignal-backend/internal/scrape/proxy"
	"github.com/gamesignal/gamesignal-backend/internal/strategy"
	"github.com/gamesignal/gamesignal-backend/internal/viral"
)

type app struct {
	cfg config.Config
	log *logger.Logger

	pg  *db.PostgresService
	bus redisbus.Bus
}

// connect opens postgres, runs migrations, and attaches the signal bus when
// REDIS_ADDR is configured. A down redis degrades to publishing-disabled.
func (a *app) connect() error {
	if a.pg != nil {
		return nil
	}
	pg, err := db.NewPostgresService(a.log)
	if err != nil {
		return err
	}
	if err := pg.AutoMigrateAll(); err != nil {
		return err
	}
	a.pg = pg

	if a.cfg.Redis.Addr != "" {
		bus, err := redisbus.New(a.log, a.cfg.Redis)
		if err != nil {
			a.log.Warn("signal bus unavailable, publishing disabled", "error", err)
		} else {
			a.bus = bus
		}
	}
	return nil
}

func (a *app) close() {
	if a.bus != nil {
		_ = a.bus.Close()
	}
}

func (a *app) listenerService() *listener.Service {
	gdb := a.pg.DB()
	repos := listener.Repos{
		Sources:  listeningrepo.NewSourceRepo(gdb, a.log),
		States:   listeningrepo.NewListenerStateRepo(gdb, a.log),
		Items:    listeningrepo.NewItemRepo(gdb, a.log),
		Comments: listeningrepo.NewCommentRepo(gdb, a.log),
		Chunks:   listeningrepo.NewChunkRepo(gdb, a.log),
		Cards:    listeningrepo.NewStrategyCardRepo(gdb, a.log),
		Alerts:   listeningrepo.NewAlertRepo(gdb, a.log),
	}

	var extractor listener.CardExtractor
	if a.cfg.LLM.Enabled {
		extractor = strategy.NewExtractor(llm.New(a.log, a.cfg.LLM), a.log)
	}

	fetcher := reddit.NewClient(a.log, a.cfg.Fetch)
	return listener.NewService(repos, fetcher, extractor, a.bus, a.cfg, a.log)
}

func (a *app) detector() *viral.Detector {
	gdb := a.pg.DB()
	return viral.NewDetector(
		socialrepo.NewUnifiedPostRepo(gdb, a.log),
		intelrepo.NewViralOutlierRepo(gdb, a.log),
		intelrepo.NewTaskLockRepo(gdb, a.log),
		a.bus,
		a.cfg.Viral,
		a.log,
	)
}

func (a *app) discoveryEngine() (*discovery.Engine, error) {
	d := a.cfg.Discovery
	if d.ScraperPrimaryURL == "" {
		return nil, fmt.Errorf("SCRAPER_PRIMARY_URL is not set")
	}
	primary := scrape.RemoteFactory(scrape.RemoteConfig{
		BaseURL: d.ScraperPrimaryURL,
		Timeout: d.ScraperTimeout,
	}, a.log)
	var fallback scrape.Factory
	if d.ScraperFallbackURL != "" {
		fallback = scrape.RemoteFactory(scrape.RemoteConfig{
			BaseURL: d.ScraperFallbackURL,
			Timeout: d.ScraperTimeout,
		}, a.log)
	}
	policy := scrape.NewDriverPolicy(primary, fallback, a.log)

	classifier, err := scrape.LoadClassifier(d.ClassifierFile)
	if err != nil {
		return nil, fmt.Errorf("load proxy classifier: %w", err)
	}
	pool := proxy.NewPool(d.ProxyPoolFile, nil, a.log)

	gdb := a.pg.DB()
	return discovery.NewEngine(
		socialrepo.NewHashtagPostRepo(gdb, a.log),
		socialrepo.NewCompetitorPostRepo(gdb, a.log),
		policy,
		pool,
		classifier,
		d,
		a.log,
	), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func parseUUIDFlag(name, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --%s %q: %w", name, value, err)
	}
	return id, nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "gamesignal",
		Short:         "Social-signal ingestion and ranking for indie-game marketing intelligence",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newRunOnceCmd(a),
		newRunCmd(a),
		newAddSubredditCmd(a),
		newAddQueryCmd(a),
		newBackfillCmd(a),
		newCleanupCmd(a),
		newReprocessCardsCmd(a),
		newConfigCmd(a),
		newDiscoverHashtagsCmd(a),
		newScanViralCmd(a),
		newValidateProxiesCmd(a),
		newAggregateContextCmd(a),
	)
	return root
}

func newRunOnceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run-once",
		Short: "Execute one listener pass, viral scan, and cleanup, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.connect(); err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			sched := scheduler.New(a.listenerService(), a.detector(), a.log)
			return sched.RunOnce(ctx)
		},
	}
}

func newRunCmd(a *app) *cobra.Command {
	var intervalMin int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipelines on a schedule until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.connect(); err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			sched := scheduler.New(a.listenerService(), a.detector(), a.log)
			err := sched.RunPeriodic(ctx, time.Duration(intervalMin)*time.Minute)
			if err == context.Canceled {
				a.log.Info("shutting down")
				return nil
			}
			return err
		},
	}
	cmd.Flags().IntVar(&intervalMin, "interval-min", 15, "minutes between listener passes")
	return cmd
}

func newAddSubredditCmd(a *app) *cobra.Command {
	var userID, groupID string
	cmd := &cobra.Command{
		Use:   "add-subreddit <name>",
		Short: "Register a subreddit source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return addSource(a, userID, groupID, &listeningtypes.Source{
				Kind:  listeningtypes.SourceKindSubreddit,
				Value: args[0],
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "owning user id (required)")
	cmd.Flags().StringVar(&groupID, "group-id", "", "owning group id")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func newAddQueryCmd(a *app) *cobra.Command {
	var userID, groupID, subreddit string
	cmd := &cobra.Command{
		Use:   "add-query <query>",
		Short: "Register a keyword-search source, optionally scoped to one subreddit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return addSource(a, userID, groupID, &listeningtypes.Source{
				Kind:            listeningtypes.SourceKindKeyword,
				Value:           args[0],
				SubredditFilter: subreddit,
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "owning user id (required)")
	cmd.Flags().StringVar(&groupID, "group-id", "", "owning group id")
	cmd.Flags().StringVar(&subreddit, "subreddit", "", "restrict the search to one subreddit")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func addSource(a *app, userID, groupID string, source *listeningtypes.Source) error {
	owner, err := parseUUIDFlag("user-id", userID)
	if err != nil {
		return err
	}
	group := uuid.Nil
	if groupID != "" {
		if group, err = parseUUIDFlag("group-id", groupID); err != nil {
			return err
		}
	}
	if err := a.connect(); err != nil {
		return err
	}
	source.OwnerID = owner
	source.GroupID = group
	source.Enabled = true

	repo := listeningrepo.NewSourceRepo(a.pg.DB(), a.log)
	persisted, err := repo.Create(context.Background(), nil, source)
	if err != nil {
		return err
	}
	fmt.Printf("source %s (%s %q)\n", persisted.ID, persisted.Kind, persisted.Value)
	return nil
}

func newBackfillCmd(a *app) *cobra.Command {
	var sourceID string
	var hours int
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Ingest one source's history without touching its watermark",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUUIDFlag("source-id", sourceID)
			if err != nil {
				return err
			}
			if hours <= 0 {
				return fmt.Errorf("--hours must be positive")
			}
			if err := a.connect(); err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			res, err := a.listenerService().Backfill(ctx, id, hours)
			if err != nil {
				return err
			}
			fmt.Printf("seen %d kept %d cards %d\n", res.ItemsSeen, res.ItemsKept, res.CardsCreated)
			return nil
		},
	}
	cmd.Flags().StringVar(&sourceID, "source-id", "", "source to backfill (required)")
	cmd.Flags().IntVar(&hours, "hours", 24, "how far back to fetch")
	_ = cmd.MarkFlagRequired("source-id")
	return cmd
}

func newCleanupCmd(a *app) *cobra.Command {
	var sourceID, userID string
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete a source and everything derived from it",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUUIDFlag("source-id", sourceID)
			if err != nil {
				return err
			}
			var owner *uuid.UUID
			if userID != "" {
				parsed, err := parseUUIDFlag("user-id", userID)
				if err != nil {
					return err
				}
				owner = &parsed
			}
			if err := a.connect(); err != nil {
				return err
			}
			repo := listeningrepo.NewSourceRepo(a.pg.DB(), a.log)
			if err := repo.DeleteCascade(context.Background(), nil, id, owner); err != nil {
				return err
			}
			fmt.Printf("source %s deleted\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&sourceID, "source-id", "", "source to delete (required)")
	cmd.Flags().StringVar(&userID, "user-id", "", "require this owner before deleting")
	_ = cmd.MarkFlagRequired("source-id")
	return cmd
}

func newReprocessCardsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "reprocess-cards",
		Short: "Run card extraction over stored items that have no card yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.connect(); err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			created, err := a.listenerService().ReprocessCards(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Printf("cards created: %d\n", created)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum items to reprocess")
	return cmd
}

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets elided",
		RunE: func(cmd *cobra.Command, args []string) error {
			sanitized := a.cfg.Sanitized()
			keys := make([]string, 0, len(sanitized))
			for k := range sanitized {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%-28s %v\n", k, sanitized[k])
			}
			return nil
		},
	}
}

func newDiscoverHashtagsCmd(a *app) *cobra.Command {
	var (
		userID, groupID, platform, proxyFlag string
		seeds                                []string
		iterations, maxHashtags, maxPosts    int
		recursive                            bool
	)
	cmd := &cobra.Command{
		Use:   "discover-hashtags",
		Short: "Mine and scrape unscraped hashtags for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := parseUUIDFlag("user-id", userID)
			if err != nil {
				return err
			}
			group, err := parseUUIDFlag("group-id", groupID)
			if err != nil {
				return err
			}
			if platform == "" {
				return fmt.Errorf("--platform is required")
			}
			if err := a.connect(); err != nil {
				return err
			}
			engine, err := a.discoveryEngine()
			if err != nil {
				return err
			}
			req := discovery.Request{
				OwnerID:       owner,
				GroupID:       group,
				Platform:      platform,
				Seeds:         seeds,
				Proxy:         proxyFlag,
				MaxHashtags:   maxHashtags,
				MaxPosts:      maxPosts,
				MaxIterations: iterations,
			}
			ctx, cancel := signalContext()
			defer cancel()
			if recursive {
				res, err := engine.DiscoverRecursive(ctx, req)
				if err != nil {
					return err
				}
				fmt.Printf("iterations %d scraped %d new posts %d\n", res.Iterations, res.Succeeded, res.NewPosts)
				return nil
			}
			res, err := engine.DiscoverOnce(ctx, req)
			if err != nil {
				return err
			}
			fmt.Printf("hashtags %d scraped %d new posts %d\n", len(res.Hashtags), res.Succeeded, res.NewPosts)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "owning user id (required)")
	cmd.Flags().StringVar(&groupID, "group-id", "", "owning group id (required)")
	cmd.Flags().StringVar(&platform, "platform", "", "instagram or tiktok (required)")
	cmd.Flags().StringArrayVar(&seeds, "seed", nil, "seed hashtag, repeatable")
	cmd.Flags().IntVar(&iterations, "iterations", 0, "recursive iteration count (0 = config default)")
	cmd.Flags().IntVar(&maxHashtags, "max-hashtags", 0, "hashtags per sweep (0 = config default)")
	cmd.Flags().IntVar(&maxPosts, "max-posts", 0, "posts per hashtag (0 = config default)")
	cmd.Flags().BoolVar(&recursive, "recursive", false, "iterate until nothing new is scraped")
	cmd.Flags().StringVar(&proxyFlag, "proxy", "", `proxy URL, "DIRECT", or empty for auto-select`)
	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("group-id")
	return cmd
}

func newScanViralCmd(a *app) *cobra.Command {
	var withCleanup bool
	cmd := &cobra.Command{
		Use:   "scan-viral",
		Short: "Detect viral outliers across scraped posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.connect(); err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			det := a.detector()
			res, err := det.Scan(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%s: accounts %d candidates %d accepted %d (created %d updated %d)\n",
				res.Status, res.Accounts, res.Candidates, res.Accepted, res.Created, res.Updated)
			if withCleanup {
				deleted, err := det.Cleanup(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("expired outliers deleted: %d\n", deleted)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withCleanup, "cleanup", false, "also delete expired outliers")
	return cmd
}

func newValidateProxiesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-proxies",
		Short: "Re-probe the proxy pool and rewrite the verified list",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			pool := proxy.NewPool(a.cfg.Discovery.ProxyPoolFile, nil, a.log)
			alive, err := pool.ValidateAll(ctx, nil)
			if err != nil {
				return err
			}
			fmt.Printf("verified proxies: %d\n", alive)
			return nil
		},
	}
}

func newAggregateContextCmd(a *app) *cobra.Command {
	var userID, groupID, platform string
	cmd := &cobra.Command{
		Use:   "aggregate-context",
		Short: "Build the content-generation context for a tenant and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := parseUUIDFlag("user-id", userID)
			if err != nil {
				return err
			}
			group, err := parseUUIDFlag("group-id", groupID)
			if err != nil {
				return err
			}
			if platform == "" {
				return fmt.Errorf("--platform is required")
			}
			if err := a.connect(); err != nil {
				return err
			}
			svc := contextagg.NewService(a.pg.DB(), a.log)
			ctx, cancel := signalContext()
			defer cancel()
			result, err := svc.Aggregate(ctx, owner, group, platform)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "owning user id (required)")
	cmd.Flags().StringVar(&groupID, "group-id", "", "owning group id (required)")
	cmd.Flags().StringVar(&platform, "platform", "", "target platform (required)")
	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("group-id")
	return cmd
}

func main() {
	_ = godotenv.Load()

	log, err := logger.New(envutil.String("LOG_MODE", "dev"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()
	shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "gamesignal",
		Environment: envutil.String("APP_ENV", "dev"),
		Version:     envutil.String("APP_VERSION", "dev"),
	})
	defer func() {
		if shutdownOTel == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTel(shutdownCtx)
	}()

	a := &app{cfg: config.Load(), log: log}
	defer a.close()

	if err := newRootCmd(a).Execute(); err != nil {
		log.Error("command failed", "error", err)
		os.Exit(1)
	}
}
