package models

import (
	"log"

	"github.com/vhm24r/ledger_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&IngestionSession{}, &UploadedFile{},
		&Order{}, &OrderChange{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
