package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"lynxbot/internal/logging"
	"lynxbot/internal/platform"

	"github.com/spf13/cobra"
)

var (
	runChannel  string
	runUser     string
	runMarkdown bool
	runFileDir  string
)

// runCmd starts the bot on the terminal
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Chat with the bot on the terminal",
	Long: `Starts the engine on the console gateway. Every input line is one chat
message, either "name: text" or plain text from --user. "/join <channel>"
switches conversation and "/help" lists the slash commands. Ctrl-D or Ctrl-C
stops the bot and prints token usage.`,
	RunE: runBot,
}

func init() {
	runCmd.Flags().StringVar(&runChannel, "channel", "console", "Conversation to start in")
	runCmd.Flags().StringVar(&runUser, "user", "you", "Author of lines without a name prefix")
	runCmd.Flags().BoolVar(&runMarkdown, "markdown", true, "Render replies as markdown")
	runCmd.Flags().StringVar(&runFileDir, "files", "", "Directory that receives uploaded files (screenshots)")
}

func runBot(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	console := platform.NewConsole(platform.ConsoleConfig{
		In:       cmd.InOrStdin(),
		Out:      cmd.OutOrStdout(),
		Seed:     runChannel,
		User:     runUser,
		BotName:  botName(),
		Markdown: runMarkdown,
		FileDir:  runFileDir,
	})

	e, err := newEngine(ctx, cfg, console, nil)
	if err != nil {
		return err
	}
	return serve(ctx, e, cmd)
}

// serve runs e until it stops and prints the usage summary.
func serve(ctx context.Context, e *engine, cmd *cobra.Command) error {
	runErr := e.run(ctx)
	e.close()

	if runErr != nil {
		logging.BootError("gateway stopped: %v", runErr)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "\nusage: %s", e.tracker.Summary())
	return runErr
}

func botName() string {
	if len(cfg.Bot.Names) == 0 {
		return "lynxbot"
	}
	return cfg.Bot.Names[len(cfg.Bot.Names)-1]
}
