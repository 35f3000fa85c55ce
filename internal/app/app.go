package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/NogameNo-life/redis-sentinel/internal/controller"
	"github.com/NogameNo-life/redis-sentinel/internal/redisx"
)

// Run builds a Controller from cfg, starts it, and serves the HTTP
// introspection surface until ctx is canceled, then drains and stops.
// Grounded on the teacher's RunServer: one manager goroutine, one HTTP
// server goroutine, a select over ctx.Done()/their error channels.
func Run(ctx context.Context, cfg Config, log zerolog.Logger) error {
	if len(cfg.Seeds) == 0 {
		return errors.New("app: at least one seed address is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 2 * time.Second
	}

	seedClients := make([]redisx.DiscoveryClient, 0, len(cfg.Seeds))
	for _, addr := range cfg.Seeds {
		client, err := redisx.NewDiscoveryClient(ctx, redisx.Options{
			Addr:        addr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			DialTimeout: cfg.DialTimeout,
		})
		if err != nil {
			return fmt.Errorf("app: dialing seed %s: %w", addr, err)
		}
		defer func() { _ = client.Close() }()
		seedClients = append(seedClients, client)
	}

	ctrlCfg := controller.Config{
		PollInterval:        cfg.PollInterval,
		ClusterSlotsTimeout: cfg.ClusterSlotsTimeout,
		TrackReplicas:       cfg.TrackReplicas,
		ConnectPassword:     cfg.RedisPassword,
		ConnectDB:           cfg.RedisDB,
		DialTimeout:         cfg.DialTimeout,
		StopGrace:           cfg.StopGrace,
	}
	switch cfg.Mode {
	case "cluster":
		ctrlCfg.Mode = controller.ModeCluster
		ctrlCfg.ClusterSeeds = seedClients
	case "sentinel", "":
		if len(cfg.ShardNames) == 0 {
			return errors.New("app: sentinel mode requires at least one shard name")
		}
		ctrlCfg.Mode = controller.ModeSentinel
		ctrlCfg.SentinelClients = seedClients
		ctrlCfg.ShardNames = cfg.ShardNames
	default:
		return fmt.Errorf("app: unknown mode %q", cfg.Mode)
	}

	ctrl := controller.New(ctrlCfg, log)
	if err := ctrl.Init(ctx); err != nil {
		return err
	}
	if err := ctrl.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: controller.NewHTTPHandler(ctrl)}
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		httpErrCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctrl.Stop(context.Background())
	case err := <-httpErrCh:
		_ = ctrl.Stop(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
