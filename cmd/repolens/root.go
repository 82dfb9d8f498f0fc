package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"repolens/internal/app"
	"repolens/internal/config"
)

// Set by the release build.
var version = "dev"

type rootOptions struct {
	user    string
	role    string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "repolens",
		Short:         "Analyze a GitHub repository into an architecture overview, hotspots and a tutorial",
		SilenceUsage:  true,
		Version:       version,
		PersistentPreRun: func(*cobra.Command, []string) {
			_ = godotenv.Load()
		},
	}
	root.PersistentFlags().StringVar(&opts.user, "user", "cli", "user id the analysis is stored under")
	root.PersistentFlags().StringVar(&opts.role, "role", "", "reader role used to tailor the output")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Minute, "overall deadline")

	root.AddCommand(newAnalyzeCmd(opts), newAskCmd(opts))
	return root
}

func (o *rootOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

func buildServices() (*app.Services, error) {
	return app.Build(config.FromEnv())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSONFile(dir, name string, v any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	if err := writeJSON(f, v); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", filepath.Join(dir, name))
	return nil
}
