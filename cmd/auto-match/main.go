package main

import (
	"context"
	"fmt"
	"os"

	"github.com/vhm24r/ledger_backend/config"
	"github.com/vhm24r/ledger_backend/ingest"
	"github.com/vhm24r/ledger_backend/models"
	"github.com/vhm24r/ledger_backend/utils"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx = utils.SetUserNameInContext(ctx, "AutoMatch")

	matched, err := ingest.AutoMatchOrders(ctx, db, config.GetLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "auto-match failed after %d orders: %v\n", matched, err)
		os.Exit(1)
	}
	fmt.Printf("auto-matched %d orders\n", matched)
}
