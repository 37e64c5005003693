package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/vhm24r/ledger_backend/config"
	"github.com/vhm24r/ledger_backend/ingest"
	"github.com/vhm24r/ledger_backend/models"
	"github.com/vhm24r/ledger_backend/utils"
)

func main() {
	fileId := flag.Int("file-id", 0, "Uploaded file id to reprocess (required)")
	flag.Parse()

	if *fileId <= 0 {
		fmt.Fprintln(os.Stderr, "usage: reprocess-file -file-id <id>")
		os.Exit(1)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx = utils.SetUserNameInContext(ctx, "ReprocessFile")

	result, err := ingest.ReprocessFile(ctx, db, config.GetLogger(), *fileId)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reprocess failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("file %d reprocessed: %d rows read, %d processed, %d created, %d corrected\n",
		*fileId, result.TotalRows, result.ProcessedRows, result.NewOrders, result.UpdatedOrders)
	for _, rowErr := range result.RowErrors {
		fmt.Fprintf(os.Stderr, "row error: %v\n", rowErr)
	}
	for _, failure := range result.ChunkFailures {
		fmt.Fprintf(os.Stderr, "chunk failure: %v\n", failure)
	}
}
