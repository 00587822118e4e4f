package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/brunoga/docsync"
	"github.com/brunoga/docsync/redisbus"
)

var watchPointer string

var watchCmd = &cobra.Command{
	Use:   "watch <doc-id>",
	Short: "Print changes relayed over Redis for one document location",
	Long: `Print changes relayed over Redis for one document location.

Changes at the location and at any of its ancestors are shown, the latter
narrowed to the watched location. Stop with Ctrl-C.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := docsync.ParsePath(watchPointer)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		zl := log.SugaredLogger.Desugar()
		relay, err := redisbus.Dial(ctx, cfg.Redis, redisbus.WithLogger(zl))
		if err != nil {
			return err
		}
		defer relay.Close()

		bus := docsync.NewBus(docsync.WithLogger(zl))
		unsubscribe := bus.Subscribe(args[0], path, func(c docsync.Change) {
			value, _ := json.Marshal(c.Value)
			fmt.Fprintf(cmd.OutOrStdout(), "v%d %s %s %s\n", c.Version, c.Kind, c.Path, value)
		})
		defer unsubscribe()

		if err := relay.Forward(ctx, bus); err != nil {
			return err
		}
		log.Info("watching", "doc", args[0], "path", path.String(), "channel", cfg.Redis.Channel)
		<-ctx.Done()
		return nil
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchPointer, "path", "", "JSON Pointer of the location to watch (empty for the whole document)")
}
