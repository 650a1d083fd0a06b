package commands

import (
	"fmt"
	"os"

	"schoolsync-backend/lib/ics"
	"schoolsync-backend/lib/serviceutil"

	"github.com/spf13/cobra"
)

var exportOut *string

func init() {
	exportOut = exportCmd.Flags().String("out", "", "Write the feed to a file instead of stdout.")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export [--out <path/to/feed.ics>]",
	Short: "Exports canonical events as an iCalendar feed.",
	Run: func(cmd *cobra.Command, args []string) {
		svc := openServices()
		defer svc.db.Close()

		events, err := svc.store.Events(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to list events", err)
		}
		feed := ics.Render(events)

		if *exportOut == "" {
			fmt.Print(feed)
			return
		}
		err = os.WriteFile(*exportOut, []byte(feed), 0644)
		if err != nil {
			serviceutil.Fatal("failed to write feed", err)
		}
		fmt.Printf("wrote %d events to %s\n", len(events), *exportOut)
	},
}
