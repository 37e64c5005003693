package ingest

import (
	"github.com/vhm24r/ledger_backend/models"
)

// FieldChange is one field-level difference between a canonical record and
// an incoming row.
type FieldChange struct {
	Column   string
	OldValue string
	NewValue string
}

// DiffOrder compares every mutable field the incoming row carries against
// the existing canonical record and returns the differences. Fields the
// source did not carry are skipped; a previously empty field now populated
// is an ordinary difference (the taxonomy does not separate "filled").
// Tie-break is last-write-wins in processing order: the incoming value
// always supersedes.
func DiffOrder(existing *models.Order, incoming *OrderValues) []FieldChange {
	var changes []FieldChange

	add := func(column, oldValue, newValue string) {
		if oldValue != newValue {
			changes = append(changes, FieldChange{Column: column, OldValue: oldValue, NewValue: newValue})
		}
	}

	if incoming.Seen["machine_code"] {
		add("machine_code", existing.MachineCode, incoming.MachineCode)
	}
	if incoming.Seen["price"] {
		if !existing.Price.Equal(incoming.Price) {
			changes = append(changes, FieldChange{
				Column:   "price",
				OldValue: existing.Price.String(),
				NewValue: incoming.Price.String(),
			})
		}
	}
	if incoming.Seen["payment_type"] {
		add("payment_type", existing.PaymentType, incoming.PaymentType)
	}
	if incoming.Seen["payment_status"] {
		add("payment_status", existing.PaymentStatus, incoming.PaymentStatus)
	}
	if incoming.Seen["creation_time"] && incoming.CreationTime != nil {
		oldValue := ""
		if existing.CreationTime != nil {
			oldValue = existing.CreationTime.UTC().Format("2006-01-02 15:04:05")
		}
		newValue := incoming.CreationTime.UTC().Format("2006-01-02 15:04:05")
		add("creation_time", oldValue, newValue)
	}

	return changes
}

// ApplyTo copies the incoming values onto the record for the fields that
// changed.
func ApplyTo(order *models.Order, incoming *OrderValues, changes []FieldChange) {
	for _, change := range changes {
		switch change.Column {
		case "machine_code":
			order.MachineCode = incoming.MachineCode
		case "price":
			order.Price = incoming.Price
		case "payment_type":
			order.PaymentType = incoming.PaymentType
		case "payment_status":
			order.PaymentStatus = incoming.PaymentStatus
		case "creation_time":
			order.CreationTime = incoming.CreationTime
		}
	}
}
