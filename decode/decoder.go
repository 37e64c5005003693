package decode

import (
	"fmt"
	"os"
)

// Default archive-expansion budgets. Archives re-dispatch their entries
// through the same decoder table, so unbounded nesting or a crafted bomb
// would otherwise exhaust disk and memory.
const (
	DefaultMaxArchiveDepth = 3
	DefaultMaxArchiveFiles = 200
	DefaultMaxArchiveBytes = 512 * 1024 * 1024
)

// Context carries per-session decode state: the scoped temporary extraction
// directory and the cumulative archive-expansion budget. Its lifetime is
// the ingestion run; Close tears the directory down on every exit path.
type Context struct {
	TempDir string

	MaxArchiveDepth int
	MaxArchiveFiles int
	MaxArchiveBytes int64

	depth         int
	expandedFiles int
	expandedBytes int64
}

func NewContext() (*Context, error) {
	dir, err := os.MkdirTemp("", "ingest-*")
	if err != nil {
		return nil, err
	}
	return &Context{
		TempDir:         dir,
		MaxArchiveDepth: DefaultMaxArchiveDepth,
		MaxArchiveFiles: DefaultMaxArchiveFiles,
		MaxArchiveBytes: DefaultMaxArchiveBytes,
	}, nil
}

func (c *Context) Close() error {
	if c.TempDir == "" {
		return nil
	}
	return os.RemoveAll(c.TempDir)
}

type decoderFunc func(dc *Context, data []byte) (RowSource, error)

var decoders map[Format]decoderFunc

// The archive decoders re-enter Decode for their entries, so the table is
// assigned in init to keep package initialization acyclic.
func init() {
	decoders = map[Format]decoderFunc{
		FormatCSV:  decodeCSV,
		FormatTSV:  decodeTSV,
		FormatTXT:  decodeTXT,
		FormatXLSX: decodeXLSX,
		FormatXLS:  decodeXLS,
		FormatJSON: decodeJSON,
		FormatXML:  decodeXML,
		FormatPDF:  decodePDF,
		FormatDOCX: decodeDOCX,
		FormatDOC:  decodeDOC,
		FormatZIP:  decodeZIP,
		FormatRAR:  decodeRAR,
	}
}

// Decode turns raw bytes into a row sequence using the decoder registered
// for the format tag.
func Decode(dc *Context, format Format, data []byte) (RowSource, error) {
	decoder, ok := decoders[format]
	if !ok {
		return nil, fmt.Errorf("no decoder registered for format %q", format)
	}
	return decoder(dc, data)
}
