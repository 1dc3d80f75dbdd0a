package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/simp-lee/logger"
	"github.com/spf13/cobra"

	"github.com/simp-lee/advocatedir/internal/client"
	"github.com/simp-lee/advocatedir/internal/config"
)

type rootOptions struct {
	baseURL string
	token   string
	timeout time.Duration
	retries int
	verbose bool
	noColor bool

	log *logger.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "advocatectl",
		Short:         "Browse and manage an advocate directory",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setupLogger(cmd.ErrOrStderr())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.log != nil {
				_ = opts.log.Close()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.baseURL, "base-url", "http://localhost:8080", "advocate directory server URL")
	flags.StringVar(&opts.token, "token", "", "admin bearer token")
	flags.DurationVar(&opts.timeout, "timeout", client.DefaultTimeout, "per-request timeout")
	flags.IntVar(&opts.retries, "retries", client.DefaultMaxRetries, "retries for transient failures (0 disables)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log retries and background fetches")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	cmd.AddCommand(
		newListCmd(opts),
		newBrowseCmd(opts),
		newSearchCmd(opts),
		newGetCmd(opts),
		newFiltersCmd(opts),
		newAdminCmd(opts),
		newTokenCmd(),
	)
	return cmd
}

func (o *rootOptions) setupLogger(w io.Writer) error {
	level := "warn"
	if o.verbose {
		level = "debug"
	}
	color := false
	log, err := logger.New(append(
		config.BuildLoggerOpts(&config.LogConfig{Level: level, Format: "text", Color: &color}),
		logger.WithConsoleWriter(w),
	)...)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	o.log = log
	return nil
}

func (o *rootOptions) slogger() *slog.Logger {
	if o.log == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.log.Logger
}

// newClient builds an API client from the persistent flags. A zero retry
// count disables retries.
func (o *rootOptions) newClient() (*client.Client, error) {
	retries := o.retries
	if retries == 0 {
		retries = -1
	}
	return client.New(client.Config{
		BaseURL:    o.baseURL,
		Token:      o.token,
		Timeout:    o.timeout,
		MaxRetries: retries,
	}, client.WithLogger(o.slogger()))
}
