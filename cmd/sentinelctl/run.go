package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/NogameNo-life/redis-sentinel/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Controller and serve its HTTP introspection surface",
	RunE:  runRun,
}

func init() {
	flags := runCmd.Flags()
	flags.String("mode", "sentinel", "discovery mode: sentinel or cluster")
	flags.String("seeds", "127.0.0.1:26379", "comma-separated seed addresses")
	flags.String("shard-group", "", "comma-separated sentinel master names, in shard-id order (sentinel mode)")
	flags.String("redis-password", "", "password for both discovery and data connections")
	flags.Int("redis-db", 0, "logical database index")
	flags.Duration("dial-timeout", 3*time.Second, "connection-probe timeout")
	flags.Duration("poll-interval", 3*time.Second, "topology poll interval")
	flags.Duration("cluster-slots-timeout", 4*time.Second, "per-issuance CLUSTER SLOTS timeout")
	flags.Bool("track-replicas", true, "track replica readiness and dial replica connections")
	flags.String("http", ":8080", "HTTP introspection listen address")
	flags.Duration("stop-grace", 2*time.Second, "grace window for in-flight replies on shutdown")
	flags.String("log-level", "info", "zerolog level: debug, info, warn, error")

	for _, name := range []string{
		"mode", "seeds", "shard-group", "redis-password", "redis-db", "dial-timeout",
		"poll-interval", "cluster-slots-timeout", "track-replicas", "http", "stop-grace", "log-level",
	} {
		_ = viper.BindPFlag("run."+name, flags.Lookup(name))
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	log := newLogger(viper.GetString("run.log-level"))

	cfg := app.Config{
		Mode:                viper.GetString("run.mode"),
		Seeds:               splitCSV(viper.GetString("run.seeds")),
		ShardNames:          splitCSV(viper.GetString("run.shard-group")),
		RedisPassword:       viper.GetString("run.redis-password"),
		RedisDB:             viper.GetInt("run.redis-db"),
		DialTimeout:         viper.GetDuration("run.dial-timeout"),
		PollInterval:        viper.GetDuration("run.poll-interval"),
		ClusterSlotsTimeout: viper.GetDuration("run.cluster-slots-timeout"),
		TrackReplicas:       viper.GetBool("run.track-replicas"),
		HTTPAddr:            viper.GetString("run.http"),
		StopGrace:           viper.GetDuration("run.stop-grace"),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.Run(ctx, cfg, log)
}
