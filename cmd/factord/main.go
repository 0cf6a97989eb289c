package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/google/uuid"

	"github.com/eastmoney-sub000/factord/internal/apierr"
	"github.com/eastmoney-sub000/factord/internal/compute"
	"github.com/eastmoney-sub000/factord/internal/config"
	"github.com/eastmoney-sub000/factord/internal/domain/recommendation"
	"github.com/eastmoney-sub000/factord/internal/domain/tradedate"
	"github.com/eastmoney-sub000/factord/internal/infrastructure/db"
	clilog "github.com/eastmoney-sub000/factord/internal/log"
	"github.com/eastmoney-sub000/factord/internal/metrics"
	"github.com/eastmoney-sub000/factord/internal/obslog"
	"github.com/eastmoney-sub000/factord/internal/perf"
	"github.com/eastmoney-sub000/factord/internal/recommend"
	"github.com/eastmoney-sub000/factord/internal/scheduler"
	"github.com/eastmoney-sub000/factord/internal/store"
	"github.com/eastmoney-sub000/factord/internal/upstream"
	"github.com/eastmoney-sub000/factord/internal/valuation"
)

const (
	appName = "factord"
	version = "v0.1.0"
)

// env is the process-wide set of dependencies built once in main() and
// threaded into each subcommand, mirroring a single
// composition-root style over per-command ad-hoc construction.
type env struct {
	providers *config.ProvidersConfig
	dbManager *db.Manager
	sub       *upstream.Substrate
	store     *store.Store
	computer  *compute.Computer
	tracker   *perf.Tracker
	engine    *recommend.Engine
	estimator *valuation.Estimator
	metrics   *metrics.Registry
	provider  string
}

func main() {
	obslog.Init(obslog.Config{Level: os.Getenv("FACTORD_LOG_LEVEL"), JSON: os.Getenv("FACTORD_LOG_JSON") == "1"})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Factor pipeline and recommendation core for Chinese-equity markets",
		Version: version,
	}

	var providersPath, dbDSN, provider string
	rootCmd.PersistentFlags().StringVar(&providersPath, "providers-config", "config/providers.yaml", "path to the provider operations config")
	rootCmd.PersistentFlags().StringVar(&dbDSN, "pg-dsn", os.Getenv("PG_DSN"), "PostgreSQL connection string")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "akshare", "upstream provider name to call through")

	build := func() (*env, error) {
		return buildEnv(providersPath, dbDSN, provider)
	}

	rootCmd.AddCommand(
		newComputeCmd(build),
		newRecommendCmd(build),
		newTrackCmd(build),
		newValuateCmd(build),
		newSchedulerCmd(build),
		newServeCmd(build),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("factord exited with error")
	}
}

func buildEnv(providersPath, dbDSN, provider string) (*env, error) {
	providers, err := config.LoadProvidersConfig(providersPath)
	if err != nil {
		return nil, fmt.Errorf("load providers config: %w", err)
	}

	dbManager, err := db.NewManager(db.Config{
		DSN: dbDSN, Enabled: dbDSN != "", MaxOpenConns: 10, MaxIdleConns: 5,
		ConnMaxLifetime: 30 * time.Minute, ConnMaxIdleTime: 5 * time.Minute, QueryTimeout: 30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	repos := dbManager.Repository()
	if repos == nil {
		return nil, fmt.Errorf("persistence is disabled; pass --pg-dsn or set PG_DSN")
	}

	sub := upstream.New(providers)
	registerProviders(sub)

	var redisClient *redis.Client
	if addr := os.Getenv("FACTORD_REDIS_ADDR"); addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: addr})
	}
	st := store.New(repos.Factors, time.Minute, redisClient)

	computer := compute.New(sub, st, provider)
	tracker := perf.New(repos.Recommendations, sub, provider)
	estimator := valuation.New(sub, provider, nil)
	engine := recommend.New(st, repos.Recommendations, nil)
	metricsRegistry := metrics.NewRegistry()
	sub.SetMetrics(metricsRegistry)

	return &env{
		providers: providers, dbManager: dbManager, sub: sub, store: st,
		computer: computer, tracker: tracker, engine: engine, estimator: estimator,
		metrics: metricsRegistry, provider: provider,
	}, nil
}

// registerProviders is the extension point where a deployment wires
// real HTTP-backed upstream.Fn implementations (akshare, tushare,
// etc.) for every function name the factor computers call. The core
// ships with no live provider wired in, since the wire format of any
// given vendor endpoint is outside this module's scope; see
// DESIGN.md for the full list of function names a provider package
// must implement.
func registerProviders(sub *upstream.Substrate) {}

func newComputeCmd(build func() (*env, error)) *cobra.Command {
	var kind, fundUniverse string
	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Run the Daily Computer for stocks or funds",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := build()
			if err != nil {
				return err
			}
			defer e.dbManager.Close()

			ctx := cmd.Context()
			trade := tradedate.Today()

			steps := clilog.NewStepLogger("daily compute", []string{kind})
			steps.StartStep(kind)
			started := time.Now()

			switch kind {
			case "stock":
				progress, err := e.computer.RunStock(ctx, trade)
				e.metrics.ComputeDuration.WithLabelValues("stock").Observe(time.Since(started).Seconds())
				if err != nil {
					steps.Fail(err.Error())
					return handleUpstreamErr(err)
				}
				steps.Finish()
				return printJSON(progress.Snapshot())
			case "fund":
				progress, err := e.computer.RunFund(ctx, trade, compute.FundUniverse(fundUniverse))
				e.metrics.ComputeDuration.WithLabelValues(fundUniverse).Observe(time.Since(started).Seconds())
				if err != nil {
					steps.Fail(err.Error())
					return handleUpstreamErr(err)
				}
				steps.Finish()
				return printJSON(progress.Snapshot())
			default:
				return fmt.Errorf("unknown --kind %q, want stock or fund", kind)
			}
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "stock", "stock or fund")
	cmd.Flags().StringVar(&fundUniverse, "fund-universe", string(compute.FundUniverseTracked), "fund universe to compute (fund kind only)")
	return cmd
}

func newRecommendCmd(build func() (*env, error)) *cobra.Command {
	var kind, recType string
	var topN int
	var minScore float64
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Query the Recommendation Engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := build()
			if err != nil {
				return err
			}
			defer e.dbManager.Close()

			ctx := cmd.Context()
			trade := tradedate.Today()

			switch kind {
			case "stock":
				results, err := e.engine.RecommendStock(ctx, recommend.StockQuery{
					RecType: recommendation.RecType(recType), TradeDate: trade, MinScore: minScore, TopN: topN,
				})
				if err != nil {
					return handleUpstreamErr(err)
				}
				e.metrics.Recommendations.WithLabelValues(recType).Add(float64(len(results)))
				return printJSON(results)
			case "fund":
				results, err := e.engine.RecommendFund(ctx, recommend.FundQuery{
					RecType: recommendation.RecType(recType), TradeDate: trade, MinScore: minScore, TopN: topN,
				})
				if err != nil {
					return handleUpstreamErr(err)
				}
				e.metrics.Recommendations.WithLabelValues(recType).Add(float64(len(results)))
				return printJSON(results)
			default:
				return fmt.Errorf("unknown --kind %q, want stock or fund", kind)
			}
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "stock", "stock or fund")
	cmd.Flags().StringVar(&recType, "rec-type", string(recommendation.ShortStock), "short_stock|long_stock|short_fund|long_fund")
	cmd.Flags().IntVar(&topN, "top-n", 20, "number of recommendations to return")
	cmd.Flags().Float64Var(&minScore, "min-score", 60, "minimum composite score to be eligible")
	return cmd
}

func newTrackCmd(build func() (*env, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "track",
		Short: "Run one Performance Tracker evaluation sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := build()
			if err != nil {
				return err
			}
			defer e.dbManager.Close()

			n7, n30, err := e.tracker.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(map[string]int{"evaluated_7d": n7, "evaluated_30d": n30})
		},
	}
}

func newValuateCmd(build func() (*env, error)) *cobra.Command {
	var code string
	cmd := &cobra.Command{
		Use:   "valuate",
		Short: "Estimate a fund's intraday NAV",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := build()
			if err != nil {
				return err
			}
			defer e.dbManager.Close()

			est, err := e.estimator.Estimate(cmd.Context(), code)
			if err != nil {
				return err
			}
			return printJSON(est)
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "fund code to estimate")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func newSchedulerCmd(build func() (*env, error)) *cobra.Command {
	var schedulerConfigPath string
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Run the long-lived job scheduler (daily compute, performance eval, indices refresh)",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := build()
			if err != nil {
				return err
			}
			defer e.dbManager.Close()

			cfg, err := scheduler.LoadConfig(schedulerConfigPath)
			if err != nil {
				return err
			}
			sched := scheduler.New(cfg, e.computer, e.tracker, nil)
			sched.SetMetrics(e.metrics)

			ctx, cancel := context.WithCancel(cmd.Context())
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sig
				cancel()
			}()

			err = sched.Start(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&schedulerConfigPath, "scheduler-config", "config/scheduler.yaml", "path to the scheduler jobs config")
	return cmd
}

func newServeCmd(build func() (*env, error)) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the health/readiness HTTP endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := build()
			if err != nil {
				return err
			}
			defer e.dbManager.Close()

			mux := http.NewServeMux()
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				health := e.dbManager.Health().Health(r.Context())
				w.Header().Set("Content-Type", "application/json")
				if !health.Healthy {
					w.WriteHeader(http.StatusServiceUnavailable)
				}
				_ = json.NewEncoder(w).Encode(health)
			})
			mux.Handle("/metrics", e.metrics.Handler())

			srv := &http.Server{Addr: addr, Handler: requestIDMiddleware(mux)}
			log.Info().Str("addr", addr).Msg("serving health endpoint")

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			select {
			case err := <-errCh:
				if err != nil && err != http.ErrServerClosed {
					return err
				}
			case <-sig:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(ctx)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

// requestIDMiddleware tags every request with a short correlation ID,
// echoed back in the response header so client and server logs can be
// joined.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
	})
}

// handleUpstreamErr maps a substrate failure to the core's typed API
// error taxonomy before returning it to cobra, so CLI exit messages
// carry the same rate_limited/unavailable/not_found vocabulary the
// serve command's future HTTP error responses would.
func handleUpstreamErr(err error) error {
	if err == nil {
		return nil
	}
	apiErr := apierr.FromUpstream(err)
	return fmt.Errorf("%s: %w", apiErr.Code, err)
}
