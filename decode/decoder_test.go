package decode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vhm24r/ledger_backend/decode"
)

// Every supported format must resolve to a decoder, including the archive
// formats that re-enter Decode for their entries.
func TestDecodeDispatchCoversAllFormats(t *testing.T) {
	dc := newTestContext(t)
	formats := []decode.Format{
		decode.FormatCSV, decode.FormatTSV, decode.FormatTXT,
		decode.FormatXLSX, decode.FormatXLS,
		decode.FormatJSON, decode.FormatXML,
		decode.FormatPDF, decode.FormatDOCX, decode.FormatDOC,
		decode.FormatZIP, decode.FormatRAR,
	}
	for _, format := range formats {
		// Garbage bytes may fail the individual decoder, but never the
		// dispatch itself.
		_, err := decode.Decode(dc, format, []byte("x"))
		assert.NotContains(t, errString(err), "no decoder registered", "format %s", format)
	}
}

func TestDecodeUnknownFormat(t *testing.T) {
	_, err := decode.Decode(nil, decode.Format("parquet"), []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no decoder registered")
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
