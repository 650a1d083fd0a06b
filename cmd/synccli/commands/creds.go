package commands

import (
	"fmt"
	"syscall"

	"schoolsync-backend/lib/serviceutil"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var credsSource *string

func init() {
	credsSource = credsCmd.PersistentFlags().String("source", "compass", "The credential source to operate on.")
	credsCmd.AddCommand(credsSetCmd)
	credsCmd.AddCommand(credsShowCmd)
	credsCmd.AddCommand(credsDeleteCmd)
	rootCmd.AddCommand(credsCmd)
}

var credsCmd = &cobra.Command{
	Use:   "creds",
	Short: "Manages stored portal credentials.",
}

var credsSetCmd = &cobra.Command{
	Use:   "set <username>",
	Short: "Stores credentials for a source, prompting for the password.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc := openServices()
		defer svc.db.Close()

		fmt.Print("password: ")
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			serviceutil.Fatal("failed to read password", err)
		}

		err = svc.keychain.Save(cmd.Context(), *credsSource, args[0], string(secret))
		if err != nil {
			serviceutil.Fatal("failed to save credentials", err)
		}
		fmt.Println("saved.")
	},
}

var credsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Shows the stored username for a source.",
	Run: func(cmd *cobra.Command, args []string) {
		svc := openServices()
		defer svc.db.Close()

		username, _, err := svc.keychain.Load(cmd.Context(), *credsSource)
		if err != nil {
			serviceutil.Fatal("failed to load credentials", err)
		}
		fmt.Printf("source=%s username=%s\n", *credsSource, username)
	},
}

var credsDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Removes the stored credentials for a source.",
	Run: func(cmd *cobra.Command, args []string) {
		svc := openServices()
		defer svc.db.Close()

		err := svc.keychain.Delete(cmd.Context(), *credsSource)
		if err != nil {
			serviceutil.Fatal("failed to delete credentials", err)
		}
		fmt.Println("deleted.")
	},
}
