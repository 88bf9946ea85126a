package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/printforge/internal/api"
	"github.com/dmitrymomot/printforge/pkg/blob"
	"github.com/dmitrymomot/printforge/pkg/config"
	"github.com/dmitrymomot/printforge/pkg/email"
	"github.com/dmitrymomot/printforge/pkg/entitlement"
	"github.com/dmitrymomot/printforge/pkg/firebase"
	"github.com/dmitrymomot/printforge/pkg/httpserver"
	"github.com/dmitrymomot/printforge/pkg/importjob"
	"github.com/dmitrymomot/printforge/pkg/logger"
	"github.com/dmitrymomot/printforge/pkg/ratelimiter"
	"github.com/dmitrymomot/printforge/pkg/requestid"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("printforge stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load[appConfig]()
	if err != nil {
		return err
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	logOpts := []logger.Option{
		logger.WithEnvironment(cfg.Env, "printforge"),
		logger.WithContextExtractors(requestid.LogExtractor()),
	}
	if cfg.LogLevel != "" {
		level, err := logger.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logOpts = append(logOpts, logger.WithLevel(level))
	}
	log := logger.New(logOpts...)
	logger.SetAsDefault(log)

	res := &resources{checks: map[string]httpserver.Check{}}
	defer res.close()

	fbCfg, err := config.Load[firebase.Config]()
	if err != nil {
		return err
	}
	app, err := firebase.NewApp(ctx, fbCfg)
	if err != nil {
		return err
	}
	verifier, err := firebase.NewTokenVerifier(ctx, app, fbCfg.CheckRevoked)
	if err != nil {
		return err
	}

	// billing
	stripeCfg, err := config.Load[entitlement.StripeConfig]()
	if err != nil {
		return err
	}
	provider, err := entitlement.NewStripeProvider(stripeCfg)
	if err != nil {
		return err
	}
	entStore, err := openEntitlementStore(ctx, cfg, app, res, log)
	if err != nil {
		return err
	}
	sender, err := openEmailSender(cfg)
	if err != nil {
		return err
	}
	notifier := email.NewNotifier(sender, email.WithLogger(log))

	svc := entitlement.NewService(entStore, provider, append(cfg.entitlementOptions(),
		entitlement.WithPrices(stripeCfg.MonthlyPriceID, stripeCfg.AnnualPriceID),
		entitlement.WithNotifier(notifier),
		entitlement.WithLogger(log),
	)...)

	// import jobs
	jobs, err := openJobBackends(ctx, cfg, res, log)
	if err != nil {
		return err
	}
	files, err := blob.NewLocal(blob.LocalConfig{Dir: cfg.FilesDir, BaseURL: "/files/"})
	if err != nil {
		return err
	}
	trackerOpts := append(cfg.trackerOptions(), importjob.WithLogger(log))
	mirror, err := openMirror(ctx, cfg)
	if err != nil {
		return err
	}
	if mirror != nil {
		trackerOpts = append(trackerOpts, importjob.WithMirror(mirror, cfg.SignedURLTTL))
	}
	tracker := importjob.NewTracker(jobs.store, jobs.events, files, trackerOpts...)
	res.onClose(func() { _ = tracker.Close() })

	// http
	apiCfg, err := config.Load[api.Config]()
	if err != nil {
		return err
	}
	srvCfg, err := config.Load[httpserver.Config]()
	if err != nil {
		return err
	}
	limitCfg, err := config.Load[ratelimiter.Config]()
	if err != nil {
		return err
	}
	jobLimiter, err := ratelimiter.NewBucket(jobs.limits, limitCfg)
	if err != nil {
		return err
	}
	router := api.NewServer(apiCfg, svc, tracker, verifier,
		api.WithLogger(log),
		api.WithHealthChecks(res.checks),
		api.WithJobLimiter(jobLimiter),
	).Handler()
	server := httpserver.NewFromConfig(srvCfg, httpserver.WithLogger(log))

	log.InfoContext(ctx, "printforge starting",
		slog.String("entitlement_store", cfg.EntitlementStore),
		slog.String("job_store", cfg.JobStore),
		slog.String("blob_driver", cfg.BlobDriver),
		slog.String("email_driver", cfg.EmailDriver),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx, router) })
	g.Go(func() error { return background(entitlement.NewResetter(svc, cfg.ResetInterval).Run(gctx)) })
	g.Go(func() error { return background(tracker.Run(gctx)) })

	return g.Wait()
}

// background treats a loop ending with its context as a clean stop.
func background(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
