package serve

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"merchantama/internal/app"
	"merchantama/internal/config"
	"merchantama/internal/gateway"

	"github.com/spf13/cobra"
)

var addr string

var Cmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if addr != "" {
			cfg.Gateway.Addr = addr
		}

		a, err := app.New(ctx, cfg, app.WithRunLog())
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.Close(shutdownCtx); err != nil {
				slog.Warn("shutdown", "error", err)
			}
		}()

		var opts []gateway.ServerOption
		if runs := a.RunLog(); runs != nil {
			opts = append(opts, gateway.WithRunLog(runs))
		}

		srv := gateway.NewServer(a.NewSession, opts...)
		slog.Info("starting gateway", "addr", cfg.Gateway.Addr, "model", cfg.OpenAI.Model)
		return srv.ListenAndServe(ctx, cfg.Gateway.Addr)
	},
}

func init() {
	Cmd.Flags().StringVarP(&addr, "addr", "a", "", "override gateway listen address")
}
