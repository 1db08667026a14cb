package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	accesshandler "github.com/hafizsameer11/superCrm/internal/access/handler"
	accessservice "github.com/hafizsameer11/superCrm/internal/access/service"
	accessstore "github.com/hafizsameer11/superCrm/internal/access/store"
	companystore "github.com/hafizsameer11/superCrm/internal/company/store"
	"github.com/hafizsameer11/superCrm/internal/integration/driver"
	integrationservice "github.com/hafizsameer11/superCrm/internal/integration/service"
	integrationstore "github.com/hafizsameer11/superCrm/internal/integration/store"
	"github.com/hafizsameer11/superCrm/internal/platform/audit"
	"github.com/hafizsameer11/superCrm/internal/platform/config"
	"github.com/hafizsameer11/superCrm/internal/platform/database"
	"github.com/hafizsameer11/superCrm/internal/platform/httpserver"
	"github.com/hafizsameer11/superCrm/internal/platform/logger"
	redisplatform "github.com/hafizsameer11/superCrm/internal/platform/redis"
	projecthandler "github.com/hafizsameer11/superCrm/internal/project/handler"
	projectservice "github.com/hafizsameer11/superCrm/internal/project/service"
	projectstore "github.com/hafizsameer11/superCrm/internal/project/store"
	ratelimitmetrics "github.com/hafizsameer11/superCrm/internal/ratelimit/metrics"
	ratelimitservice "github.com/hafizsameer11/superCrm/internal/ratelimit/service"
	ratelimitstore "github.com/hafizsameer11/superCrm/internal/ratelimit/store"
	signuphandler "github.com/hafizsameer11/superCrm/internal/signup/handler"
	signupmetrics "github.com/hafizsameer11/superCrm/internal/signup/metrics"
	"github.com/hafizsameer11/superCrm/internal/signup/retry"
	signupservice "github.com/hafizsameer11/superCrm/internal/signup/service"
	signupstore "github.com/hafizsameer11/superCrm/internal/signup/store"
	ssohandler "github.com/hafizsameer11/superCrm/internal/sso/handler"
	ssometrics "github.com/hafizsameer11/superCrm/internal/sso/metrics"
	ssoservice "github.com/hafizsameer11/superCrm/internal/sso/service"
	ssostore "github.com/hafizsameer11/superCrm/internal/sso/store"
	httptransport "github.com/hafizsameer11/superCrm/internal/transport/http"
	"github.com/hafizsameer11/superCrm/migrations"
	"github.com/hafizsameer11/superCrm/pkg/crypto"
)

// stores bundles the persistence layer behind the service interfaces so the
// Postgres and in-memory wirings are interchangeable.
type stores struct {
	companies    signupservice.CompanyStore
	users        signupservice.UserStore
	requests     signupservice.RequestStore
	projects     projectservice.ProjectStore
	accesses     accessservice.AccessStore
	projectUsers ssoservice.ProjectUserStore
	usage        ssoservice.UsageStore
	callLogs     integrationservice.CallLogStore
}

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing supercrm gateway",
		"addr", cfg.Addr,
		"postgres", cfg.DatabaseURL != "",
		"redis", cfg.RedisURL != "",
		"kafka", cfg.KafkaBrokers != "")

	encryptor, err := crypto.NewAESGCM(cfg.EncryptionKey)
	if err != nil {
		log.Error("encryption key rejected", "error", err)
		os.Exit(1)
	}

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err := database.New(dbCfg)
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := migrations.Apply(ctx, pool.DB()); err != nil {
			cancel()
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		cancel()
	}

	rdb, err := redisplatform.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}

	st := buildStores(pool)

	var counters ratelimitservice.CounterStore
	if rdb != nil {
		counters = ratelimitstore.NewRedisCounterStore(rdb.Client)
	} else {
		counters = ratelimitstore.NewInMemoryCounterStore()
	}

	var sink audit.Sink
	var kafkaSink *audit.KafkaSink
	if cfg.KafkaBrokers != "" {
		kafkaSink, err = audit.NewKafkaSink(cfg.KafkaBrokers, audit.DefaultTopic)
		if err != nil {
			log.Error("kafka connection failed", "error", err)
			os.Exit(1)
		}
		sink = kafkaSink
	} else {
		sink = &audit.LogSink{Logger: log}
	}
	publisher := audit.NewPublisher(sink, audit.WithLogger(log))

	gate := ratelimitservice.New(counters, st.accesses,
		ratelimitservice.WithLogger(log),
		ratelimitservice.WithMetrics(ratelimitmetrics.New()))

	registry := driver.NewRegistry(driver.NewGeneric())

	projectSvc := projectservice.New(st.projects, registryAdapter{registry}, encryptor,
		projectservice.WithLogger(log))
	integrationClient := integrationservice.New(projectSvc, gate, st.callLogs, st.accesses,
		integrationservice.WithLogger(log))
	accessSvc := accessservice.New(st.accesses, st.projectUsers, st.companies, integrationClient, encryptor,
		accessservice.WithLogger(log))
	ssoSvc := ssoservice.New(st.usage, st.projectUsers, integrationClient,
		ssoservice.WithLogger(log),
		ssoservice.WithMetrics(ssometrics.New()))

	signupMx := signupmetrics.New()
	scheduler := retry.New(st.accesses, accessSvc, cfg.RetrySchedule,
		retry.WithLogger(log),
		retry.WithMetrics(signupMx))
	orchestrator := signupservice.New(st.requests, st.companies, st.users, st.accesses, accessSvc,
		signupservice.WithLogger(log),
		signupservice.WithMetrics(signupMx),
		signupservice.WithRetryNotifier(scheduler))

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:         log,
		AuthSigningKey: cfg.AuthSigningKey,
		Signup:         signuphandler.New(orchestrator, publisher, log),
		Access:         accesshandler.New(accessSvc, publisher, log),
		Project:        projecthandler.New(projectSvc, publisher, log),
		SSO:            ssohandler.New(ssoSvc, projectSvc, st.accesses, gate, publisher, log),
		Ready: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if pool != nil {
				if err := pool.Health(ctx); err != nil {
					return err
				}
			}
			if rdb != nil {
				return rdb.Health(ctx)
			}
			return nil
		},
	})

	srv := httpserver.New(cfg.Addr, router)

	if err := scheduler.Start(); err != nil {
		log.Error("retry scheduler failed to start", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := scheduler.Stop(stopCtx); err != nil {
		log.Warn("retry scheduler did not stop cleanly", "error", err)
	}
	cancel()

	publisher.Close()
	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			log.Warn("kafka sink closed with unflushed events", "error", err)
		}
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Warn("redis close failed", "error", err)
		}
	}
	if err := pool.Close(); err != nil {
		log.Warn("database close failed", "error", err)
	}

	log.Info("server stopped")
}

func buildStores(pool *database.Pool) stores {
	if pool == nil {
		return stores{
			companies:    companystore.NewInMemoryCompanyStore(),
			users:        companystore.NewInMemoryUserStore(),
			requests:     signupstore.NewInMemoryRequestStore(),
			projects:     projectstore.NewInMemoryProjectStore(),
			accesses:     accessstore.NewInMemoryAccessStore(),
			projectUsers: accessstore.NewInMemoryProjectUserStore(),
			usage:        ssostore.NewInMemoryUsageStore(),
			callLogs:     integrationstore.NewInMemoryCallLogStore(),
		}
	}
	db := pool.DB()
	return stores{
		companies:    companystore.NewPostgresCompanyStore(db),
		users:        companystore.NewPostgresUserStore(db),
		requests:     signupstore.NewPostgresRequestStore(db),
		projects:     projectstore.NewPostgresProjectStore(db),
		accesses:     accessstore.NewPostgresAccessStore(db),
		projectUsers: accessstore.NewPostgresProjectUserStore(db),
		usage:        ssostore.NewPostgresUsageStore(db),
		callLogs:     integrationstore.NewPostgresCallLogStore(db),
	}
}
