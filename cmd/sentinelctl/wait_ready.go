package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/NogameNo-life/redis-sentinel/internal/app"
)

var waitReadyCmd = &cobra.Command{
	Use:   "wait-ready",
	Short: "Poll a running instance's /ready endpoint until it reports ready",
	RunE:  runWaitReady,
}

func init() {
	flags := waitReadyCmd.Flags()
	flags.String("addr", "http://127.0.0.1:8080", "base URL of a running sentinelctl run instance")
	flags.String("mode", "primary", "readiness mode: primary, replica, any, all")
	flags.Duration("timeout", 5*time.Second, "how long to wait before giving up")

	for _, name := range []string{"addr", "mode", "timeout"} {
		_ = viper.BindPFlag("wait-ready."+name, flags.Lookup(name))
	}
}

func runWaitReady(cmd *cobra.Command, args []string) error {
	timeout := viper.GetDuration("wait-ready.timeout")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ok, err := app.WaitReady(ctx, viper.GetString("wait-ready.addr"), viper.GetString("wait-ready.mode"), time.Now().Add(timeout))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("sentinelctl: not ready after %s", timeout)
	}
	fmt.Println("ready")
	return nil
}
