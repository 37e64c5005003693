package ingest

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vhm24r/ledger_backend/decode"
	"github.com/vhm24r/ledger_backend/models"
	"github.com/vhm24r/ledger_backend/utils"
)

// Column-name heuristics: each canonical field lists the source column
// names it may arrive under, in priority order. Hardware logs, sales
// reports and gateway exports disagree on naming, and the older machines
// export Russian headers.
var columnAliases = map[string][]string{
	"order_number":   {"order_number", "номер_заказа", "order_id", "order_no", "orderno"},
	"machine_code":   {"machine_code", "код_автомата", "machine_id", "machine"},
	"price":          {"price", "order_price", "цена", "amount", "сумма"},
	"payment_type":   {"payment_type", "тип_оплаты", "payment_method", "pay_type"},
	"payment_status": {"payment_status", "статус_оплаты", "pay_status", "status"},
	"creation_time":  {"creation_time", "дата_создания", "created_at", "date", "время"},
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02.01.2006 15:04:05",
	"02.01.2006",
	"02/01/2006 15:04",
}

// OrderValues is one row mapped onto the canonical order fields. Seen
// tracks which fields the source actually carried, so absent columns
// never clobber existing data.
type OrderValues struct {
	OrderNumber   string
	MachineCode   string
	Price         decimal.Decimal
	PaymentType   string
	PaymentStatus string
	CreationTime  *time.Time
	Seen          map[string]bool

	rowNumber int
}

// MapRow extracts canonical order values from a decoded row. A row without
// a natural key cannot be reconciled and comes back as a RowError.
func MapRow(row *decode.Row) (*OrderValues, error) {
	values := &OrderValues{Seen: make(map[string]bool)}

	for field, aliases := range columnAliases {
		raw, ok := lookupAlias(row, aliases)
		if !ok || raw == "" {
			continue
		}
		values.Seen[field] = true
		switch field {
		case "order_number":
			values.OrderNumber = raw
		case "machine_code":
			values.MachineCode = raw
		case "price":
			values.Price = utils.ParsePrice(raw)
		case "payment_type":
			values.PaymentType = raw
		case "payment_status":
			values.PaymentStatus = raw
		case "creation_time":
			if t, ok := parseTime(raw); ok {
				values.CreationTime = &t
			} else {
				values.Seen[field] = false
			}
		}
	}

	if values.OrderNumber == "" {
		return nil, &RowError{RowNumber: row.Number, Reason: "no order number column"}
	}
	return values, nil
}

func lookupAlias(row *decode.Row, aliases []string) (string, bool) {
	for _, alias := range aliases {
		if v, ok := row.Get(alias); ok {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

func parseTime(value string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NewOrder materializes a canonical record from the first sighting of a
// natural key.
func (v *OrderValues) NewOrder(sourceFileId *int, createdBy int) *models.Order {
	return &models.Order{
		OrderNumber:   v.OrderNumber,
		MachineCode:   v.MachineCode,
		Price:         v.Price,
		PaymentType:   v.PaymentType,
		PaymentStatus: v.PaymentStatus,
		MatchStatus:   models.MatchStatusUnmatched,
		CreationTime:  v.CreationTime,
		Version:       1,
		SourceFileId:  sourceFileId,
		CreatedBy:     createdBy,
	}
}
