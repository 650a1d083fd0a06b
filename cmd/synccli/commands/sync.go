package commands

import (
	"fmt"
	"time"

	"schoolsync-backend/lib/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(processCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Runs one login, fetch and store pass against the portal.",
	Run: func(cmd *cobra.Command, args []string) {
		svc := openServices()
		defer svc.db.Close()

		t1 := time.Now()
		err := svc.sync.Sync(cmd.Context())
		if err != nil {
			serviceutil.Fatal("sync failed", err)
		}
		fmt.Printf("synced in %.1fs\n", time.Since(t1).Seconds())
	},
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Normalizes stored raw payloads into canonical events.",
	Run: func(cmd *cobra.Command, args []string) {
		svc := openServices()
		defer svc.db.Close()

		report, err := svc.sync.Process(cmd.Context())
		if err != nil {
			serviceutil.Fatal("processing failed", err)
		}
		fmt.Printf("created=%d updated=%d errors=%d\n",
			report.Created, report.Updated, report.Errors)
	},
}
