package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/appraisement/appraisal-engine/internal/cache"
	"github.com/appraisement/appraisal-engine/internal/engine"
	"github.com/appraisement/appraisal-engine/internal/store"
	"github.com/appraisement/appraisal-engine/internal/workflow"
	"github.com/appraisement/appraisal-engine/pkg/anthropic"
	"github.com/appraisement/appraisal-engine/pkg/assessor"
	"github.com/appraisement/appraisal-engine/pkg/firecrawl"
	"github.com/appraisement/appraisal-engine/pkg/geocode"
	"github.com/appraisement/appraisal-engine/pkg/notify"

	appraisepkg "github.com/appraisement/appraisal-engine/internal/appraise"
)

// appEnv holds the store, the Temporal client, and the engine used by the
// serve/appraise/status commands. Callers should defer env.Close().
type appEnv struct {
	Store    store.Store
	Cache    *cache.Cache
	Temporal client.Client
	Engine   *engine.Engine
}

func (e *appEnv) Close() {
	if e.Temporal != nil {
		e.Temporal.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "appraisal.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initTemporal() (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    workflow.NewZapAdapter(zap.L()),
	})
	if err != nil {
		return nil, eris.Wrap(err, "dial temporal")
	}
	return c, nil
}

// initEnv sets up the store and Temporal client for commands that submit and
// inspect requests but run no activities themselves.
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	tc, err := initTemporal()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &appEnv{
		Store:    st,
		Cache:    cache.New(st),
		Temporal: tc,
		Engine:   engine.New(st, tc, cfg),
	}, nil
}

// initActivities builds the full connector set the worker needs. The worker is
// the only process that talks to the external APIs, so key validation lives
// here rather than in config loading.
func initActivities(st store.Store, c *cache.Cache) (*workflow.Activities, error) {
	if cfg.Mapbox.Token == "" {
		return nil, eris.New("mapbox token is required (APPRAISAL_MAPBOX_TOKEN)")
	}
	if cfg.Firecrawl.Key == "" {
		return nil, eris.New("firecrawl key is required (APPRAISAL_FIRECRAWL_KEY)")
	}
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic key is required (APPRAISAL_ANTHROPIC_KEY)")
	}

	geocoder := geocode.NewClient(cfg.Mapbox.Token,
		geocode.WithBaseURL(cfg.Mapbox.BaseURL),
		geocode.WithCountry(cfg.Mapbox.Country),
		geocode.WithLimit(cfg.Mapbox.Limit))
	assessorClient := assessor.NewClient(cfg.Assessor.ExportURL, cfg.Assessor.DetailsBaseURL,
		assessor.WithResultsPerPage(cfg.Assessor.ResultsPerPage),
		assessor.WithRateLimit(cfg.Assessor.RatePerSecond))
	firecrawlClient := firecrawl.NewClient(cfg.Firecrawl.Key,
		firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
	appraiser := appraisepkg.New(anthropic.NewClient(cfg.Anthropic.Key),
		cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)

	var notifier notify.Notifier
	if cfg.Resend.Key != "" {
		notifier = notify.NewResend(cfg.Resend.Key, cfg.Resend.From)
	} else {
		zap.L().Debug("APPRAISAL_RESEND_KEY not set, result emails disabled")
	}

	return workflow.NewActivities(st, c, geocoder, assessorClient, firecrawlClient, appraiser, notifier, cfg), nil
}
