package commands

import (
	"os"
	"time"

	"schoolsync-backend/lib/serviceutil"
	"schoolsync-backend/lib/timezone"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(batchesCmd)
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Lists canonical events in the ledger.",
	Run: func(cmd *cobra.Command, args []string) {
		svc := openServices()
		defer svc.db.Close()

		events, err := svc.store.Events(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to list events", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"start", "title", "location", "status"})
		for _, event := range events {
			start := time.Unix(event.StartAt, 0).In(timezone.Location)
			location := ""
			if event.Location.Valid {
				location = event.Location.String
			}
			status := ""
			if event.Status.Valid {
				status = event.Status.String
			}
			t.AppendRow(table.Row{
				start.Format("Mon 02 Jan 15:04"),
				event.Title,
				location,
				status,
			})
		}
		t.Render()
	},
}

var batchesCmd = &cobra.Command{
	Use:   "batches <method>",
	Short: "Shows the latest batch for a fetch method and its payload count.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc := openServices()
		defer svc.db.Close()

		batch, err := svc.store.LatestBatch(cmd.Context(), "compass", args[0])
		if err != nil {
			serviceutil.Fatal("failed to load latest batch", err)
		}
		payloads, err := svc.store.ListPayloads(cmd.Context(), batch.ID)
		if err != nil {
			serviceutil.Fatal("failed to list payloads", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"batch", "created", "parameters", "payloads"})
		t.AppendRow(table.Row{
			batch.ID,
			time.Unix(batch.CreatedAt, 0).In(timezone.Location).Format(time.RFC822),
			batch.ParametersJson,
			len(payloads),
		})
		t.Render()
	},
}
