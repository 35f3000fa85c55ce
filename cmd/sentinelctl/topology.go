package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/NogameNo-life/redis-sentinel/internal/app"
)

var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Print a running instance's current slot-to-shard mapping",
	RunE:  runTopology,
}

func init() {
	flags := topologyCmd.Flags()
	flags.String("addr", "http://127.0.0.1:8080", "base URL of a running sentinelctl run instance")
	flags.Duration("timeout", 3*time.Second, "how long to wait for a response")

	for _, name := range []string{"addr", "timeout"} {
		_ = viper.BindPFlag("topology."+name, flags.Lookup(name))
	}
}

func runTopology(cmd *cobra.Command, args []string) error {
	timeout := viper.GetDuration("topology.timeout")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	snap, err := app.FetchTopology(ctx, viper.GetString("topology.addr"))
	if err != nil {
		return err
	}

	fmt.Printf("epoch %d, %d interval(s)\n", snap.Epoch, len(snap.Intervals))
	for _, iv := range snap.Intervals {
		fmt.Printf("  [%5d-%5d] -> shard %d\n", iv.Min, iv.Max, iv.Shard)
	}
	return nil
}
