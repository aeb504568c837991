package chat

import (
	"bufio"
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
	Use:   "chat",
	Short: "Chat with the agent in the terminal",
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

		fmt.Fprintln(os.Stderr, "Type a message, /reset to start over, /quit to exit.")
		scanner := bufio.NewScanner(os.Stdin)
		history := ""
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			switch line {
			case "":
				continue
			case "/quit":
				return nil
			case "/reset":
				sess.Reset()
				history = ""
				continue
			}

			reply, err := sess.HandleMessageStream(ctx, line, history)
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				continue
			}
			if err := app.Render(os.Stdout, os.Stderr, reply); err != nil {
				fmt.Fprintln(os.Stderr, "\nerror:", err)
			}
			fmt.Println()
			if reply.Completed() {
				history = reply.UpdatedHistory()
			}
			if ctx.Err() != nil {
				return nil
			}
		}
	},
}

func init() {
	Cmd.Flags().Int64VarP(&merchantID, "merchant", "m", 1, "merchant id")
}
