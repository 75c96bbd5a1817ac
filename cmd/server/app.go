package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	audithandler "audittrail/internal/audit/handler"
	"audittrail/internal/audit/ingest"
	"audittrail/internal/platform/config"
	"audittrail/internal/platform/metrics"
	"audittrail/internal/platform/postgres"
	platformredis "audittrail/internal/platform/redis"
	httptransport "audittrail/internal/transport/http"
	"audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/audit/anonymize"
	"audittrail/pkg/platform/audit/bucket"
	"audittrail/pkg/platform/audit/query"
	"audittrail/pkg/platform/audit/recorder"
	"audittrail/pkg/platform/audit/signing"
	"audittrail/pkg/platform/audit/store/memory"
	auditpg "audittrail/pkg/platform/audit/store/postgres"
	auditredis "audittrail/pkg/platform/audit/store/redis"
	"audittrail/pkg/platform/audit/writer"
)

// app holds the wired process and the resources Close releases.
type app struct {
	Router    http.Handler
	Recorder  *recorder.Recorder
	StoreKind string
	closers   []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// build constructs stores, the write and read paths, and the router from cfg.
func build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{}
	health := map[string]httptransport.HealthCheck{}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var (
		records audit.RecordStore
		buckets audit.BucketStore
	)
	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		health["postgres"] = db.PingContext
		records = auditpg.New(db)
		buckets = auditpg.NewBucketStore(db)
		a.StoreKind = "postgres"
	} else {
		log.Warn("no database configured, audit records are kept in memory")
		records = memory.NewInMemoryStore()
		buckets = memory.NewInMemoryBucketStore()
		a.StoreKind = "memory"
	}

	rdb, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, err
	}
	if rdb != nil {
		a.closers = append(a.closers, rdb.Close)
		health["redis"] = rdb.Health
		buckets = auditredis.NewBucketStore(rdb.Client, auditredis.WithTTL(cfg.Redis.BucketTTL))
	}

	anon := anonymize.New(cfg.IPSalt, cfg.IdentifierSalt)
	w, err := writer.New(records, signing.New(cfg.HMACSecret),
		writer.WithLogger(log),
		writer.WithMetrics(writer.NewMetrics(reg)),
		writer.WithFailOpen(cfg.FailOpen),
		writer.WithTimeout(cfg.WriteTimeout),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("audit writer: %w", err)
	}
	b, err := bucket.New(buckets, anon,
		bucket.WithLogger(log),
		bucket.WithMetrics(bucket.NewMetrics(reg)),
		bucket.WithWindow(cfg.BucketWindow),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failure bucketer: %w", err)
	}
	a.Recorder, err = recorder.New(w, b, anon)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("audit recorder: %w", err)
	}
	svc, err := query.New(records,
		query.WithLogger(log),
		query.WithMetrics(query.NewMetrics(reg)),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("audit query service: %w", err)
	}

	a.Router = httptransport.NewRouter(httptransport.Deps{
		Logger:         log,
		AdminJWTSecret: cfg.AdminJWTSecret,
		Admin:          audithandler.New(svc, log, cfg.ExportRateLimit),
		Ingest:         ingest.New(w, a.Recorder, anon, log),
		Metrics:        metrics.New(reg),
		Gatherer:       reg,
		Health:         health,
	})
	return a, nil
}
