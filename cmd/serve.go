package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/livemark/livemark/internal/config"
	"github.com/livemark/livemark/internal/logging"
	"github.com/livemark/livemark/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve [file.md]",
	Short: "Start the preview server",
	Long: `Start the preview server. With a file argument the server watches the
file and re-renders it on change; without one it waits for editor
submissions on /update.

Examples:
  livemark serve                  # wait for editor submissions
  livemark serve notes.md         # watch and serve a file
  livemark serve -p 9000 notes.md # custom port`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8765, "port to serve on")
	serveCmd.Flags().String("host", "localhost", "host to bind to")
	serveCmd.Flags().Bool("open", false, "open browser after starting")
	serveCmd.Flags().Bool("no-wikilinks", false, "disable wiki-link and inclusion resolution")
	serveCmd.Flags().Bool("no-latex", false, "disable math span protection")

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.open", serveCmd.Flags().Lookup("open"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	if noWikilinks, _ := cmd.Flags().GetBool("no-wikilinks"); noWikilinks {
		cfg.Preview.Wikilinks = false
	}
	if noLatex, _ := cmd.Flags().GetBool("no-latex"); noLatex {
		cfg.Preview.Latex = false
	}

	if len(args) == 1 {
		target, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolving %s: %w", args[0], err)
		}
		if _, err := os.Stat(target); err != nil {
			return fmt.Errorf("target file: %w", err)
		}
		cfg.TargetFile = target
	}

	log := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})

	srv, err := server.New(cfg, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Start(ctx)
}
