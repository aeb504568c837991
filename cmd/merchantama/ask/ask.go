package ask

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"merchantama/internal/app"
	"merchantama/internal/config"

	"github.com/spf13/cobra"
)

var merchantID int64

var Cmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question and stream the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		sess, err := a.NewSession(merchantID)
		if err != nil {
			return err
		}
		reply, err := sess.HandleMessageStream(ctx, strings.Join(args, " "), "")
		if err != nil {
			return err
		}
		if err := app.Render(os.Stdout, os.Stderr, reply); err != nil {
			return err
		}
		fmt.Println()
		return nil
	},
}

func init() {
	Cmd.Flags().Int64VarP(&merchantID, "merchant", "m", 1, "merchant id")
}
