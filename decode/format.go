package decode

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
)

// Format tags every supported input family. The tag, not the file
// extension, keys decoder dispatch.
type Format string

const (
	FormatCSV  Format = "delimited-csv"
	FormatTSV  Format = "delimited-tsv"
	FormatXLSX Format = "spreadsheet-xlsx"
	FormatXLS  Format = "spreadsheet-xls"
	FormatPDF  Format = "document-pdf"
	FormatDOCX Format = "document-docx"
	FormatJSON Format = "structured-json"
	FormatXML  Format = "structured-xml"
	FormatZIP  Format = "archive-zip"
	FormatRAR  Format = "archive-rar"
	FormatTXT  Format = "plain-text"
	FormatDOC  Format = "legacy-doc"
)

var formatByExtension = map[string]Format{
	"csv":  FormatCSV,
	"tsv":  FormatTSV,
	"xlsx": FormatXLSX,
	"xls":  FormatXLS,
	"pdf":  FormatPDF,
	"docx": FormatDOCX,
	"json": FormatJSON,
	"xml":  FormatXML,
	"zip":  FormatZIP,
	"rar":  FormatRAR,
	"txt":  FormatTXT,
	"doc":  FormatDOC,
}

// SupportedExtensions returns the upload allow-list (without dots).
func SupportedExtensions() []string {
	exts := make([]string, 0, len(formatByExtension))
	for ext := range formatByExtension {
		exts = append(exts, ext)
	}
	return exts
}

// UnsupportedFormatError reports a missing or unrecognized file extension.
type UnsupportedFormatError struct {
	Extension string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Extension == "" {
		return "unsupported file format: missing extension"
	}
	return fmt.Sprintf("unsupported file format: %q", e.Extension)
}

// DetectFormat classifies a file by extension. The byte signature, when one
// is recognizable, is cross-checked as hardening only; a mismatch never
// overrides the extension verdict.
func DetectFormat(filename string, data []byte) (Format, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	format, ok := formatByExtension[ext]
	if !ok {
		return "", &UnsupportedFormatError{Extension: ext}
	}
	return format, nil
}

// SignatureMatches reports whether the leading bytes are consistent with
// the detected format. Formats without a stable magic number always match.
func SignatureMatches(format Format, data []byte) bool {
	switch format {
	case FormatPDF:
		return bytes.HasPrefix(data, []byte("%PDF"))
	case FormatZIP, FormatXLSX, FormatDOCX:
		return bytes.HasPrefix(data, []byte("PK\x03\x04"))
	case FormatRAR:
		return bytes.HasPrefix(data, []byte("Rar!"))
	case FormatXLS, FormatDOC:
		// OLE compound file header.
		return bytes.HasPrefix(data, []byte{0xD0, 0xCF, 0x11, 0xE0})
	default:
		return true
	}
}
