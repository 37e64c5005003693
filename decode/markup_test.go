package decode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vhm24r/ledger_backend/decode"
)

func TestDecodeJSONArray(t *testing.T) {
	data := []byte(`[
		{"order_number": "A-1", "price": 12.5},
		{"order_number": "A-2", "price": 3}
	]`)
	rows := decodeAll(t, decode.FormatJSON, data)
	require.Len(t, rows, 2)

	v, _ := rows[0].Get("order_number")
	assert.Equal(t, "A-1", v)
	// Numbers keep their source representation.
	v, _ = rows[0].Get("price")
	assert.Equal(t, "12.5", v)
	v, _ = rows[1].Get("price")
	assert.Equal(t, "3", v)
}

func TestDecodeJSONNested(t *testing.T) {
	data := []byte(`{
		"order": {"number": "A-1", "machine": {"code": "VM-7"}},
		"tags": ["cash", "retry"],
		"refund": null,
		"settled": true
	}`)
	rows := decodeAll(t, decode.FormatJSON, data)
	require.Len(t, rows, 1)
	row := rows[0]

	v, _ := row.Get("order.number")
	assert.Equal(t, "A-1", v)
	v, _ = row.Get("order.machine.code")
	assert.Equal(t, "VM-7", v)
	v, _ = row.Get("tags.0")
	assert.Equal(t, "cash", v)
	v, _ = row.Get("tags.1")
	assert.Equal(t, "retry", v)
	v, ok := row.Get("refund")
	require.True(t, ok)
	assert.Equal(t, "", v)
	v, _ = row.Get("settled")
	assert.Equal(t, "true", v)

	// Map keys flatten in sorted order, so column order is stable.
	assert.Equal(t, []string{"order.machine.code", "order.number", "refund", "settled", "tags.0", "tags.1"}, row.Columns)
}

func TestDecodeJSONInvalid(t *testing.T) {
	_, err := decode.Decode(nil, decode.FormatJSON, []byte("{not json"))
	require.Error(t, err)
}

func TestDecodeXML(t *testing.T) {
	data := []byte(`<orders source="vhm">
		<order id="1"><number>A-1</number><price>12.50</price></order>
	</orders>`)
	rows := decodeAll(t, decode.FormatXML, data)

	paths := make([]string, 0, len(rows))
	values := make(map[string]string)
	for _, row := range rows {
		p, _ := row.Get("path")
		v, _ := row.Get("value")
		paths = append(paths, p)
		values[p] = v
	}

	// Parent attributes come before child element text.
	assert.Equal(t, []string{
		"orders@source",
		"orders.order@id",
		"orders.order.number",
		"orders.order.price",
	}, paths)
	assert.Equal(t, "vhm", values["orders@source"])
	assert.Equal(t, "A-1", values["orders.order.number"])
	assert.Equal(t, "12.50", values["orders.order.price"])

	for i, row := range rows {
		assert.Equal(t, i+1, row.Number)
	}
}

func TestDecodeXMLInvalid(t *testing.T) {
	_, err := decode.Decode(nil, decode.FormatXML, []byte("<open><unclosed>"))
	require.Error(t, err)
}
