package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/collab-client/internal/domain"
	"github.com/spec-kit/collab-client/pkg/collab"
)

// CredentialOptions holds flags shared by login and register.
type CredentialOptions struct {
	*RootOptions
	Name     string
	Email    string
	Password string
}

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CredentialOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:     "login",
		Short:   "Sign in and store the access token",
		Example: "  collabctl login --email ada@example.com --password secret1",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(ctx context.Context, c *collab.Client) error {
				user, err := c.Session.Login(ctx, opts.Email, opts.Password)
				if err != nil {
					return err
				}
				return printUser(opts.output(cmd), user, "signed in as")
			})
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "account email")
	cmd.Flags().StringVar(&opts.Password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CredentialOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in with it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(ctx context.Context, c *collab.Client) error {
				user, err := c.Session.Register(ctx, opts.Name, opts.Email, opts.Password)
				if err != nil {
					return err
				}
				return printUser(opts.output(cmd), user, "registered")
			})
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "account email")
	cmd.Flags().StringVar(&opts.Password, "password", "", "account password (at least 6 characters)")

	return cmd
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withClient(cmd, func(ctx context.Context, c *collab.Client) error {
				if err := c.Session.Logout(ctx); err != nil {
					return err
				}
				return rootOpts.output(cmd).Print(c.Session.Current(), "signed out")
			})
		},
	}
}

// NewWhoamiCommand creates the whoami command.
func NewWhoamiCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the user the stored token belongs to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withSession(cmd, func(ctx context.Context, c *collab.Client) error {
				return printUser(rootOpts.output(cmd), c.Session.Current().User, "signed in as")
			})
		},
	}
}

func printUser(out *OutputFormatter, user *domain.User, prefix string) error {
	return out.Print(user, fmt.Sprintf("%s %s <%s> (%s)", prefix, user.Name, user.Email, user.ID))
}
