package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Checks, opens or closes the portal session",
		Long: `session works on the cookie jar stored at http.cookie_file, so a login made here is
reused by later list and download runs.`,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Reports whether the stored cookies hold a live session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			alive, err := appInstance.Session().HasLogin(cmd.Context())
			if err != nil {
				return err
			}
			if alive {
				fmt.Fprintln(cmd.OutOrStdout(), "session is alive")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "no session")
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "login",
		Short: "Logs in when needed and registers on the portal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.Scraper().ConfirmSessionIsAlive(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", appInstance.Session().Data().RFC())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "logout",
		Short: "Closes the session and clears the cookies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			appInstance.Scraper().Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	})
	return cmd
}
