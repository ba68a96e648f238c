package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/kozaktomas/facegate/internal/backend"
	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/constants"
	"github.com/kozaktomas/facegate/internal/facesvc"
	"github.com/kozaktomas/facegate/internal/gate"
	"github.com/kozaktomas/facegate/internal/lbp"
	"github.com/kozaktomas/facegate/internal/registry"
	"github.com/kozaktomas/facegate/internal/sampler"
	"github.com/kozaktomas/facegate/internal/store"
	"github.com/kozaktomas/facegate/internal/store/postgres"
)

// Build wires a full engine from configuration: the face service
// client, the sample store, the record store (PostgreSQL when a
// database URL is configured, a gob file otherwise) and both backends.
func Build(ctx context.Context, cfg *config.Config) (*Engine, error) {
	client := facesvc.NewClient(cfg.FaceService.URL, cfg.FaceService.Model)

	locators := []gate.Locator{facesvc.NewLocator(client)}
	if cfg.Tuning.CenterFallback {
		locators = append(locators, gate.CenterLocator{})
	}
	g := gate.New(gate.Config{
		EnrollBlurThreshold:   cfg.Tuning.EnrollBlurThreshold,
		IdentifyBlurThreshold: cfg.Tuning.IdentifyBlurThreshold,
		CanonicalSize:         constants.CanonicalSize,
	}, locators...)

	samples, err := store.NewSampleStore(cfg.Data.Dir)
	if err != nil {
		return nil, fmt.Errorf("opening sample store: %w", err)
	}

	records, err := buildRecordStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	gallery := store.NewGallery(records, cfg.Data.HNSWIndexPath, cfg.Tuning.GallerySearchK)

	embedding := backend.NewEmbeddingBackend(
		facesvc.NewEmbedder(client), gallery, cfg.Tuning.MinEmbeddings, client.Model())
	classical := backend.NewClassicalBackend(lbp.New())

	smp := sampler.New(g, samples, cfg.Tuning.MinSamples)

	eng := New(cfg.Tuning, cfg.Data.ModelPath, g, smp, samples, embedding, classical,
		func() backend.Recognizer { return lbp.New() })

	if cfg.Registry.DatabaseURL != "" {
		reg, err := registry.NewClient(cfg.Registry.DatabaseURL)
		if err != nil {
			// The registry is a convenience join, not a dependency.
			log.Printf("[ENGINE] registry unavailable: %v", err)
		} else {
			eng.SetResolver(registryResolver{reg})
		}
	}

	if err := eng.Init(ctx); err != nil {
		return nil, err
	}
	return eng, nil
}

func buildRecordStore(ctx context.Context, cfg *config.Config) (store.RecordStore, error) {
	if cfg.Database.URL == "" {
		rs, err := store.NewGobRecordStore(cfg.Data.GalleryPath)
		if err != nil {
			return nil, fmt.Errorf("opening gob record store: %w", err)
		}
		return rs, nil
	}

	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return postgres.NewRecordRepository(pool), nil
}

// registryResolver adapts the registry client to the engine.
type registryResolver struct {
	client *registry.Client
}

func (r registryResolver) ResolveName(ctx context.Context, identity int64) (string, error) {
	p, err := r.client.Lookup(ctx, identity)
	if err != nil {
		return "", err
	}
	return p.Name, nil
}
