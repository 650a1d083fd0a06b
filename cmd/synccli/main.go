package main

import (
	"context"

	"schoolsync-backend/cmd/synccli/commands"
	"schoolsync-backend/lib/telemetry"
)

func main() {
	telemetry.InitSlog(true)
	commands.ExecuteContext(context.Background())
}
