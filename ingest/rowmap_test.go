package ingest_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vhm24r/ledger_backend/decode"
	"github.com/vhm24r/ledger_backend/ingest"
)

func makeRow(number int, values map[string]string) *decode.Row {
	row := decode.NewRow(number)
	for k, v := range values {
		row.Set(k, v)
	}
	return row
}

func TestMapRowCanonicalColumns(t *testing.T) {
	row := makeRow(1, map[string]string{
		"order_number":   "A-1",
		"machine_code":   "VM-7",
		"price":          "12.50",
		"payment_type":   "card",
		"payment_status": "completed",
		"creation_time":  "2026-03-01 10:30:00",
	})

	values, err := ingest.MapRow(row)
	if err != nil {
		t.Fatalf("MapRow: %v", err)
	}
	if values.OrderNumber != "A-1" {
		t.Errorf("OrderNumber = %q, want A-1", values.OrderNumber)
	}
	if values.MachineCode != "VM-7" {
		t.Errorf("MachineCode = %q, want VM-7", values.MachineCode)
	}
	if !values.Price.Equal(decimal.RequireFromString("12.50")) {
		t.Errorf("Price = %s, want 12.50", values.Price)
	}
	if values.CreationTime == nil {
		t.Fatal("CreationTime not parsed")
	}
	want := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	if !values.CreationTime.Equal(want) {
		t.Errorf("CreationTime = %v, want %v", values.CreationTime, want)
	}
	for _, field := range []string{"order_number", "machine_code", "price", "payment_type", "payment_status", "creation_time"} {
		if !values.Seen[field] {
			t.Errorf("field %s not marked as seen", field)
		}
	}
}

func TestMapRowRussianAliases(t *testing.T) {
	row := makeRow(1, map[string]string{
		"номер_заказа": "З-10",
		"код_автомата": "ВМ-3",
		"цена":         "100,50",
		"тип_оплаты":   "нал",
	})

	values, err := ingest.MapRow(row)
	if err != nil {
		t.Fatalf("MapRow: %v", err)
	}
	if values.OrderNumber != "З-10" {
		t.Errorf("OrderNumber = %q, want З-10", values.OrderNumber)
	}
	if values.MachineCode != "ВМ-3" {
		t.Errorf("MachineCode = %q, want ВМ-3", values.MachineCode)
	}
	// Comma decimal separator is handled by the price parser.
	if !values.Price.Equal(decimal.RequireFromString("100.50")) {
		t.Errorf("Price = %s, want 100.50", values.Price)
	}
	if values.PaymentType != "нал" {
		t.Errorf("PaymentType = %q, want нал", values.PaymentType)
	}
}

func TestMapRowAliasPriority(t *testing.T) {
	// The canonical name wins over later aliases when both are present.
	row := makeRow(1, map[string]string{
		"order_number": "A-1",
		"order_id":     "ignored",
	})
	values, err := ingest.MapRow(row)
	if err != nil {
		t.Fatalf("MapRow: %v", err)
	}
	if values.OrderNumber != "A-1" {
		t.Errorf("OrderNumber = %q, want A-1", values.OrderNumber)
	}
}

func TestMapRowMissingOrderNumber(t *testing.T) {
	row := makeRow(7, map[string]string{"price": "5"})
	_, err := ingest.MapRow(row)
	rowErr, ok := err.(*ingest.RowError)
	if !ok {
		t.Fatalf("MapRow error = %v, want *RowError", err)
	}
	if rowErr.RowNumber != 7 {
		t.Errorf("RowNumber = %d, want 7", rowErr.RowNumber)
	}
}

func TestMapRowUnparseableTimeNotSeen(t *testing.T) {
	row := makeRow(1, map[string]string{
		"order_number":  "A-1",
		"creation_time": "not a date",
	})
	values, err := ingest.MapRow(row)
	if err != nil {
		t.Fatalf("MapRow: %v", err)
	}
	if values.Seen["creation_time"] {
		t.Error("unparseable creation_time should not be marked seen")
	}
	if values.CreationTime != nil {
		t.Errorf("CreationTime = %v, want nil", values.CreationTime)
	}
}

func TestMapRowDottedDate(t *testing.T) {
	row := makeRow(1, map[string]string{
		"order_number":  "A-1",
		"дата_создания": "01.03.2026 10:30:00",
	})
	values, err := ingest.MapRow(row)
	if err != nil {
		t.Fatalf("MapRow: %v", err)
	}
	if values.CreationTime == nil {
		t.Fatal("CreationTime not parsed")
	}
	if values.CreationTime.Day() != 1 || values.CreationTime.Month() != time.March {
		t.Errorf("CreationTime = %v, want March 1", values.CreationTime)
	}
}
