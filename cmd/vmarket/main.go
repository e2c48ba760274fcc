package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/janiskrasemann/vmarket/internal/alert"
	"github.com/janiskrasemann/vmarket/internal/config"
	"github.com/janiskrasemann/vmarket/internal/fetcher"
	"github.com/janiskrasemann/vmarket/internal/logging"
	"github.com/janiskrasemann/vmarket/internal/mailer"
	"github.com/janiskrasemann/vmarket/internal/publish"
	"github.com/janiskrasemann/vmarket/internal/refresher"
	"github.com/janiskrasemann/vmarket/internal/renderer"
	"github.com/janiskrasemann/vmarket/internal/server"
	"github.com/janiskrasemann/vmarket/internal/snapshot"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Errorf("Failed to load .env: %v", err)
	}
	logging.InitFromEnv()

	if err := newRootCmd().Execute(); err != nil {
		logging.Fatalf("vmarket: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var once bool

	cmd := &cobra.Command{
		Use:           "vmarket",
		Short:         "Scrape stock index pages and serve the latest values over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, fromFile, err := config.LoadOrDefault(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if fromFile {
				logging.Infof("Loaded config from %s", configPath)
			} else {
				logging.Infof("Using built-in config")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if once {
				return runOnce(ctx, cfg)
			}
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config file (built-in defaults when empty or missing)")
	cmd.Flags().BoolVar(&once, "once", false, "run a single refresh cycle, print the snapshot as JSON and exit")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	store := snapshot.New(cfg.SourceIDs()...)

	opts, closeSinks, err := refresherOptions(ctx, cfg)
	if err != nil {
		closeSinks()
		return err
	}
	defer func() {
		if err := closeSinks(); err != nil {
			logging.Errorf("Failed to close sinks: %v", err)
		}
	}()

	ref := newRefresher(cfg, store, opts...)
	srv := server.New(store, cfg.CORS.AllowedOrigins)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ref.Run(ctx) })
	g.Go(func() error { return srv.ListenAndServe(ctx, cfg.Addr()) })

	logging.Infof("VMarket started. Sources: %v, schedule: %s", cfg.SourceIDs(), cfg.Schedule)
	err = g.Wait()
	logging.Infof("Shutting down...")
	return err
}

func runOnce(ctx context.Context, cfg *config.Config) error {
	store := snapshot.New(cfg.SourceIDs()...)
	ref := newRefresher(cfg, store)

	for _, res := range ref.RunCycle(ctx) {
		if !res.OK() {
			logging.Errorf("Failed to scrape %s: %v", res.Source.ID, res.Err)
		}
	}

	all, err := store.All()
	if err != nil {
		return fmt.Errorf("refresh cycle: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(all)
}

func newRefresher(cfg *config.Config, store *snapshot.Store, opts ...refresher.Option) *refresher.Refresher {
	page := fetcher.NewIndexPage(fetcher.NewHTTPClient(cfg.FetchTimeout))
	opts = append([]refresher.Option{
		refresher.WithSchedule(cfg.Schedule),
		refresher.WithTimeout(cfg.FetchTimeout),
	}, opts...)
	return refresher.New(page, store, cfg.FetchSources(), opts...)
}

// refresherOptions wires the optional sinks and the alerter.
func refresherOptions(ctx context.Context, cfg *config.Config) ([]refresher.Option, func() error, error) {
	var sinks []publish.Sink
	closeSinks := func() error { return publish.CloseAll(sinks) }

	if rc := cfg.Redis; rc != nil {
		r, err := publish.NewRedis(publish.RedisConfig{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
			Prefix:   rc.Prefix,
			TTL:      rc.TTL,
		})
		if err != nil {
			return nil, closeSinks, fmt.Errorf("redis sink: %w", err)
		}
		if err := r.Ping(ctx); err != nil {
			logging.Errorf("Redis ping failed, values will still be published when it comes back: %v", err)
		}
		sinks = append(sinks, r)
		logging.Infof("Publishing to redis at %s", rc.Addr)
	}

	if kc := cfg.Kafka; kc != nil {
		k, err := publish.NewKafka(publish.KafkaConfig{Brokers: kc.Brokers, Topic: kc.Topic})
		if err != nil {
			return nil, closeSinks, fmt.Errorf("kafka sink: %w", err)
		}
		sinks = append(sinks, k)
		logging.Infof("Publishing to kafka brokers %v", kc.Brokers)
	}

	opts := []refresher.Option{refresher.WithSinks(sinks...)}

	if ac := cfg.Alerts; ac != nil {
		rend, err := renderer.Default()
		if err != nil {
			return nil, closeSinks, fmt.Errorf("alert renderer: %w", err)
		}
		mail := mailer.New(ac.From, ac.To, ac.ResendAPIKey)
		alerter := alert.New(rend, mail, ac.Threshold)
		opts = append(opts, refresher.WithObserver(alerter))
		logging.Infof("Alerting %v after %d consecutive failures", ac.To, alerter.Threshold())
	}

	return opts, closeSinks, nil
}
