package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fjod/chibi-storefront/internal/auth"
	"github.com/fjod/chibi-storefront/internal/storefront"
)

var (
	password       string
	passwordRepeat string
	email          string
	googleToken    string
)

var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Sign in with a username or email",
	Long: `Sign in and keep the session for later commands.

The password is read from --password or the CHIBI_PASSWORD environment
variable. With --google the given Google identity token is exchanged instead.
A guest cart started before login is merged into the account.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *storefront.App) error {
			if googleToken != "" {
				return app.Auth.LoginWithGoogle(ctx, googleToken)
			}
			if len(args) == 0 {
				return errors.New("username is required")
			}
			return app.Auth.Login(ctx, args[0], passwordFromEnv())
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *storefront.App) error {
			app.Auth.Logout(ctx, auth.LogoutOptions{NotifyServer: true})
			return nil
		})
	},
}

var registerCmd = &cobra.Command{
	Use:   "register [username]",
	Short: "Create an account and sign in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *storefront.App) error {
			pw := passwordFromEnv()
			confirm := passwordRepeat
			if confirm == "" {
				confirm = pw
			}
			return app.Auth.Register(ctx, auth.RegisterInput{
				Username: args[0],
				Email:    email,
				Password: pw,
				Confirm:  confirm,
			})
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *storefront.App) error {
			user := app.Auth.User()
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, user)
			}
			if user == nil {
				fmt.Fprintln(out, "guest")
				return nil
			}
			role := "customer"
			if user.IsSuperuser {
				role = "admin"
			}
			fmt.Fprintf(out, "%s <%s> (%s)\n", user.Username, user.Email, role)
			if exp, ok := app.Auth.TokenExpiry(); ok {
				fmt.Fprintf(out, "access token expires in %s\n", time.Until(exp).Round(time.Second))
			}
			return nil
		})
	},
}

func passwordFromEnv() string {
	if password != "" {
		return password
	}
	return os.Getenv("CHIBI_PASSWORD")
}

func init() {
	loginCmd.Flags().StringVarP(&password, "password", "p", "", "Password (or set CHIBI_PASSWORD)")
	loginCmd.Flags().StringVar(&googleToken, "google", "", "Google identity token")
	registerCmd.Flags().StringVarP(&password, "password", "p", "", "Password (or set CHIBI_PASSWORD)")
	registerCmd.Flags().StringVar(&passwordRepeat, "password2", "", "Password confirmation (defaults to --password)")
	registerCmd.Flags().StringVar(&email, "email", "", "Account email")
}
