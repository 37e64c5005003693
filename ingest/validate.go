package ingest

import (
	"path/filepath"
	"strings"

	"github.com/vhm24r/ledger_backend/decode"
)

const MaxUploadBytes = 100 << 20

// ValidateFile applies the upload gate before any bytes are persisted:
// known extension, non-empty, at most 100MB.
func ValidateFile(filename string, size int64) error {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return &ValidationError{Filename: filename, Reason: "missing file extension"}
	}
	if !extensionSupported(ext) {
		return &ValidationError{Filename: filename, Reason: "unsupported file type ." + ext}
	}
	if size == 0 {
		return &ValidationError{Filename: filename, Reason: "file is empty"}
	}
	if size > MaxUploadBytes {
		return &ValidationError{Filename: filename, Reason: "file exceeds the 100MB limit"}
	}
	return nil
}

func extensionSupported(ext string) bool {
	for _, supported := range decode.SupportedExtensions() {
		if ext == supported {
			return true
		}
	}
	return false
}
