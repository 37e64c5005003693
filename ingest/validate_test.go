package ingest_test

import (
	"strings"
	"testing"

	"github.com/vhm24r/ledger_backend/ingest"
)

func TestValidateFile(t *testing.T) {
	cases := []struct {
		name     string
		filename string
		size     int64
		wantErr  string
	}{
		{"csv ok", "sales.csv", 1024, ""},
		{"xlsx ok", "Report.XLSX", 1024, ""},
		{"zip ok", "batch.zip", 1024, ""},
		{"no extension", "README", 10, "missing file extension"},
		{"unsupported", "image.png", 10, "unsupported file type .png"},
		{"empty", "sales.csv", 0, "file is empty"},
		{"too large", "sales.csv", ingest.MaxUploadBytes + 1, "100MB limit"},
		{"at limit", "sales.csv", ingest.MaxUploadBytes, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ingest.ValidateFile(tc.filename, tc.size)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateFile(%q, %d): %v", tc.filename, tc.size, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateFile(%q, %d): expected error containing %q", tc.filename, tc.size, tc.wantErr)
			}
			if _, ok := err.(*ingest.ValidationError); !ok {
				t.Errorf("error type = %T, want *ValidationError", err)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %q, want substring %q", err.Error(), tc.wantErr)
			}
		})
	}
}
