// cmd/server/watch.go
package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jason-s-yu/bingo/internal/cache"
	"github.com/jason-s-yu/bingo/internal/config"
	"github.com/jason-s-yu/bingo/internal/game"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newWatchCommand follows one room's event stream through Redis, printing
// each event as a JSON line. It works against any instance that mirrors
// events to the same Redis.
func newWatchCommand() *cobra.Command {
	var (
		addr     string
		password string
		db       int
	)
	cmd := &cobra.Command{
		Use:   "watch <room-code>",
		Short: "Print a room's live events from Redis.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				return errors.New("--redis-addr is required")
			}
			code, err := game.NormalizeCode(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			client, err := cache.NewRedisClient(ctx, addr, password, db)
			if err != nil {
				return err
			}
			defer client.Close()

			events, stop := cache.Subscribe(ctx, client, code)
			defer stop()

			enc := json.NewEncoder(cmd.OutOrStdout())
			for ev := range events {
				if err := enc.Encode(ev); err != nil {
					return fmt.Errorf("write event: %w", err)
				}
			}
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&addr, "redis-addr", "", "redis address (env: BINGO_REDIS_ADDR)")
	fs.StringVar(&password, "redis-password", "", "redis password (env: BINGO_REDIS_PASSWORD)")
	fs.IntVar(&db, "redis-db", 0, "redis database index (env: BINGO_REDIS_DB)")
	config.BindEnv(fs, viper.New())
	return cmd
}
