package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/obsgate/internal/auth"
	"github.com/nerrad567/obsgate/internal/infrastructure/config"
	"github.com/nerrad567/obsgate/internal/infrastructure/database"
)

// rootOptions holds the flags shared by every command.
type rootOptions struct {
	configPath string
}

// newRootCommand builds the obsgate CLI. Without a subcommand it runs
// the gateway.
func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "obsgate",
		Short:         "Robotic observatory gateway",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts.configPath)
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", getConfigPath(),
		"path to config.yaml (env: OBSGATE_CONFIG)")

	cmd.AddCommand(newCheckConfigCommand(opts))
	cmd.AddCommand(newUsersCommand(opts))
	return cmd
}

func newCheckConfigCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration file and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (site %s, rpc %s:%d)\n",
				opts.configPath, cfg.Site.ID, cfg.RPC.Host, cfg.RPC.Port)
			return nil
		},
	}
}

// newUsersCommand manages gateway accounts directly in the database.
// It is safe to run while the gateway is up; SQLite serialises writers.
func newUsersCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage gateway login accounts",
	}

	var displayName, password string
	add := &cobra.Command{
		Use:   "add <username>",
		Short: "Create an account; a password is generated unless --password is set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUsers(cmd.Context(), opts, func(ctx context.Context, repo auth.UserRepository) error {
				return addUser(ctx, repo, cmd.OutOrStdout(), args[0], displayName, password)
			})
		},
	}
	add.Flags().StringVar(&displayName, "name", "", "display name")
	add.Flags().StringVar(&password, "password", "", "initial password")

	var newPassword string
	passwd := &cobra.Command{
		Use:   "passwd <username>",
		Short: "Set a new password; one is generated unless --password is set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUsers(cmd.Context(), opts, func(ctx context.Context, repo auth.UserRepository) error {
				return setPassword(ctx, repo, cmd.OutOrStdout(), args[0], newPassword)
			})
		},
	}
	passwd.Flags().StringVar(&newPassword, "password", "", "new password")

	list := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withUsers(cmd.Context(), opts, func(ctx context.Context, repo auth.UserRepository) error {
				return listUsers(ctx, repo, cmd.OutOrStdout())
			})
		},
	}

	cmd.AddCommand(add, passwd, list,
		activeCommand(opts, "enable", true),
		activeCommand(opts, "disable", false),
	)
	return cmd
}

func activeCommand(opts *rootOptions, use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <username>",
		Short: use + " an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUsers(cmd.Context(), opts, func(ctx context.Context, repo auth.UserRepository) error {
				if err := repo.SetActive(ctx, args[0], active); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %sd\n", args[0], use)
				return nil
			})
		},
	}
}

// withUsers opens the configured database, migrates it and hands fn the
// account store.
func withUsers(ctx context.Context, opts *rootOptions, fn func(context.Context, auth.UserRepository) error) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // read-mostly CLI session
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return fn(ctx, auth.NewUserRepository(db.DB))
}

func addUser(ctx context.Context, repo auth.UserRepository, out io.Writer, username, displayName, password string) error {
	generated := password == ""
	if generated {
		var err error
		if password, err = auth.GeneratePassword(); err != nil {
			return err
		}
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	user := &auth.User{Username: username, DisplayName: displayName, PasswordHash: hash, IsActive: true}
	if err := repo.Create(ctx, user); err != nil {
		return err
	}
	fmt.Fprintf(out, "created %s (%s)\n", username, user.ID)
	if generated {
		fmt.Fprintf(out, "password: %s\n", password)
	}
	return nil
}

func setPassword(ctx context.Context, repo auth.UserRepository, out io.Writer, username, password string) error {
	generated := password == ""
	if generated {
		var err error
		if password, err = auth.GeneratePassword(); err != nil {
			return err
		}
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := repo.UpdatePassword(ctx, username, hash); err != nil {
		return err
	}
	fmt.Fprintf(out, "password changed for %s\n", username)
	if generated {
		fmt.Fprintf(out, "password: %s\n", password)
	}
	return nil
}

func listUsers(ctx context.Context, repo auth.UserRepository, out io.Writer) error {
	users, err := repo.List(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Fprintln(out, "no accounts")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tNAME\tACTIVE\tUPDATED")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", u.Username, u.DisplayName, u.IsActive, u.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, auth.ErrUsernameExists), errors.Is(err, auth.ErrInvalidUsername):
		return 2
	default:
		return 1
	}
}
