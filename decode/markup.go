package decode

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// decodeJSON flattens nested structure into dotted-path column names. A
// top-level array yields one row per element; anything else yields a
// single row.
func decodeJSON(_ *Context, data []byte) (RowSource, error) {
	var parsed interface{}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	var rows []*Row
	if list, ok := parsed.([]interface{}); ok {
		for i, element := range list {
			row := NewRow(i + 1)
			flattenJSON(element, "", row)
			rows = append(rows, row)
		}
	} else {
		row := NewRow(1)
		flattenJSON(parsed, "", row)
		rows = append(rows, row)
	}
	return newSliceSource(rows), nil
}

func flattenJSON(value interface{}, prefix string, row *Row) {
	switch v := value.(type) {
	case map[string]interface{}:
		// Maps iterate in random order; sort for a stable column order.
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flattenJSON(v[k], joinPath(prefix, k), row)
		}
	case []interface{}:
		for i, element := range v {
			flattenJSON(element, joinPath(prefix, fmt.Sprintf("%d", i)), row)
		}
	case nil:
		row.Set(prefix, "")
	case json.Number:
		row.Set(prefix, v.String())
	case bool:
		row.Set(prefix, fmt.Sprintf("%t", v))
	case string:
		row.Set(prefix, v)
	default:
		row.Set(prefix, fmt.Sprintf("%v", v))
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []xmlNode  `xml:",any"`
}

// decodeXML walks the element tree depth-first and emits one row per
// text-bearing element and per attribute, tagged with its dotted element
// path (attributes as path@name).
func decodeXML(_ *Context, data []byte) (RowSource, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = true
	// Legacy exports declare windows-1251; accept any single-byte charset.
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	var root xmlNode
	if err := decoder.Decode(&root); err != nil {
		return nil, fmt.Errorf("invalid XML: %w", err)
	}

	var rows []*Row
	addRow := func(path, value string) {
		row := NewRow(len(rows) + 1)
		row.Set("path", path)
		row.Set("value", value)
		rows = append(rows, row)
	}

	var walk func(node xmlNode, parent string)
	walk = func(node xmlNode, parent string) {
		path := joinPath(parent, node.XMLName.Local)
		if text := strings.TrimSpace(node.Text); text != "" {
			addRow(path, text)
		}
		for _, attr := range node.Attrs {
			addRow(path+"@"+attr.Name.Local, attr.Value)
		}
		for _, child := range node.Children {
			walk(child, path)
		}
	}
	walk(root, "")

	return newSliceSource(rows), nil
}
