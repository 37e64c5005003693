package ingest_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vhm24r/ledger_backend/ingest"
	"github.com/vhm24r/ledger_backend/models"
)

func TestDiffOrderDetectsChangedFields(t *testing.T) {
	existing := &models.Order{
		OrderNumber:   "A-1",
		MachineCode:   "VM-7",
		Price:         decimal.RequireFromString("12.50"),
		PaymentType:   "card",
		PaymentStatus: "pending",
	}
	incoming := &ingest.OrderValues{
		OrderNumber:   "A-1",
		MachineCode:   "VM-7",
		Price:         decimal.RequireFromString("12.50"),
		PaymentStatus: "completed",
		Seen: map[string]bool{
			"order_number":   true,
			"machine_code":   true,
			"price":          true,
			"payment_status": true,
		},
	}

	changes := ingest.DiffOrder(existing, incoming)
	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1: %+v", len(changes), changes)
	}
	if changes[0].Column != "payment_status" {
		t.Errorf("Column = %q, want payment_status", changes[0].Column)
	}
	if changes[0].OldValue != "pending" || changes[0].NewValue != "completed" {
		t.Errorf("change = %q -> %q, want pending -> completed", changes[0].OldValue, changes[0].NewValue)
	}
}

func TestDiffOrderIgnoresUnseenFields(t *testing.T) {
	existing := &models.Order{
		OrderNumber: "A-1",
		MachineCode: "VM-7",
		Price:       decimal.RequireFromString("12.50"),
	}
	// A source that only carries the key and price must not clobber
	// machine_code with an empty value.
	incoming := &ingest.OrderValues{
		OrderNumber: "A-1",
		Price:       decimal.RequireFromString("12.50"),
		Seen:        map[string]bool{"order_number": true, "price": true},
	}

	if changes := ingest.DiffOrder(existing, incoming); len(changes) != 0 {
		t.Fatalf("got %d changes, want 0: %+v", len(changes), changes)
	}
}

func TestDiffOrderPriceComparedNumerically(t *testing.T) {
	existing := &models.Order{
		OrderNumber: "A-1",
		Price:       decimal.RequireFromString("12.50"),
	}
	incoming := &ingest.OrderValues{
		OrderNumber: "A-1",
		Price:       decimal.RequireFromString("12.5"),
		Seen:        map[string]bool{"order_number": true, "price": true},
	}

	// 12.50 and 12.5 are the same amount, not a change.
	if changes := ingest.DiffOrder(existing, incoming); len(changes) != 0 {
		t.Fatalf("got %d changes, want 0: %+v", len(changes), changes)
	}
}

func TestDiffOrderCreationTime(t *testing.T) {
	old := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	updated := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	existing := &models.Order{OrderNumber: "A-1", CreationTime: &old}
	incoming := &ingest.OrderValues{
		OrderNumber:  "A-1",
		CreationTime: &updated,
		Seen:         map[string]bool{"order_number": true, "creation_time": true},
	}

	changes := ingest.DiffOrder(existing, incoming)
	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1: %+v", len(changes), changes)
	}
	if changes[0].OldValue != "2026-03-01 10:00:00" || changes[0].NewValue != "2026-03-01 11:00:00" {
		t.Errorf("change = %q -> %q", changes[0].OldValue, changes[0].NewValue)
	}
}

func TestApplyToCopiesOnlyChangedFields(t *testing.T) {
	existing := &models.Order{
		OrderNumber:   "A-1",
		MachineCode:   "VM-7",
		Price:         decimal.RequireFromString("12.50"),
		PaymentStatus: "pending",
	}
	incoming := &ingest.OrderValues{
		OrderNumber:   "A-1",
		MachineCode:   "VM-7",
		Price:         decimal.RequireFromString("15.00"),
		PaymentStatus: "completed",
		Seen: map[string]bool{
			"order_number": true, "machine_code": true,
			"price": true, "payment_status": true,
		},
	}

	changes := ingest.DiffOrder(existing, incoming)
	ingest.ApplyTo(existing, incoming, changes)

	if !existing.Price.Equal(decimal.RequireFromString("15.00")) {
		t.Errorf("Price = %s, want 15.00", existing.Price)
	}
	if existing.PaymentStatus != "completed" {
		t.Errorf("PaymentStatus = %q, want completed", existing.PaymentStatus)
	}
	if existing.MachineCode != "VM-7" {
		t.Errorf("MachineCode = %q, want VM-7", existing.MachineCode)
	}
}
