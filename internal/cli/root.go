package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/collab-client/internal/config"
	"github.com/spec-kit/collab-client/internal/observability"
	"github.com/spec-kit/collab-client/pkg/collab"
)

// RootOptions holds global flags and the values resolved from them.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	load   func() (*config.Config, error)
	config *config.Config
	logger *zap.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the collabctl command tree, configured from the
// environment.
func NewRootCommand() *cobra.Command {
	return newRootCommand(config.Load)
}

func newRootCommand(load func() (*config.Config, error)) *cobra.Command {
	opts := &RootOptions{load: load}

	cmd := &cobra.Command{
		Use:   "collabctl",
		Short: "Command line client for the collaboration API",
		Long: `Sign in, inspect the current identity and manage task assignments.

The access token is kept in the configured credential store (bolt by default),
so a login survives between invocations.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging on stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewRegisterCommand(opts))
	cmd.AddCommand(NewLogoutCommand(opts))
	cmd.AddCommand(NewWhoamiCommand(opts))
	cmd.AddCommand(NewAssignCommand(opts))
	cmd.AddCommand(NewUnassignCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))

	return cmd
}

func (o *RootOptions) setup() error {
	cfg, err := o.load()
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	if o.Verbose {
		cfg.Logger.Level = "debug"
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "init logger", err)
	}
	o.config = cfg
	o.logger = logger
	return nil
}

// withClient opens a client for the duration of fn.
func (o *RootOptions) withClient(cmd *cobra.Command, fn func(ctx context.Context, c *collab.Client) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := collab.New(ctx, o.config, collab.WithLogger(o.logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "open client", err)
	}
	defer c.Close()
	return fn(ctx, c)
}

// withSession is withClient for commands that need a signed-in user.
func (o *RootOptions) withSession(cmd *cobra.Command, fn func(ctx context.Context, c *collab.Client) error) error {
	return o.withClient(cmd, func(ctx context.Context, c *collab.Client) error {
		if session := c.Session.RestoreSession(ctx); !session.Authenticated() {
			return NewExitError(ExitFailure, "not signed in; run collabctl login")
		}
		return fn(ctx, c)
	})
}

func (o *RootOptions) output(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
