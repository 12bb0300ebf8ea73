package bindsync

import (
	"testing"

	"bitbucket.org/mmdatafocus/bindsync_backend/smartsheet"
)

func destSheet(rows ...smartsheet.Row) *smartsheet.Sheet {
	return &smartsheet.Sheet{
		ID:      900,
		Name:    "Facturas ACME",
		Columns: testColumns(),
		Rows:    rows,
	}
}

func invoiceRow(id int64, uuid, date, rfc string, total any, cfdi string) smartsheet.Row {
	cells := []smartsheet.Cell{
		{ColumnID: 12, Value: date},
		{ColumnID: 13, Value: rfc},
		{ColumnID: 14, Value: total},
		{ColumnID: 15, Value: cfdi},
	}
	if uuid != "" {
		cells = append(cells, smartsheet.Cell{ColumnID: 11, Value: uuid})
	}
	return smartsheet.Row{ID: id, Cells: cells}
}

func invoice(uuid, date, rfc string, total any, cfdi string) Record {
	rec := Record{"Date": date, "RFC": rfc, "Total": total, "CFDIUse": cfdi}
	if uuid != "" {
		rec["UUID"] = uuid
	}
	return rec
}

func reconcileDefaults(sheet *smartsheet.Sheet, records []Record) ([]smartsheet.RowInsert, []smartsheet.RowUpdate) {
	rules := DefaultRules()
	return Reconcile(sheet, records, rules, ColumnIndex(sheet.Columns), testLogger(), "ACME")
}

func TestReconcile_EmptyDestinationInsertsAll(t *testing.T) {
	inserts, updates := reconcileDefaults(destSheet(), []Record{
		invoice("A1", "2025-07-01", "abc123", 100.004, "G01"),
	})
	if len(updates) != 0 {
		t.Fatalf("expected no updates, got %v", updates)
	}
	if len(inserts) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(inserts))
	}
	if !inserts[0].ToBottom {
		t.Fatal("inserts must append at the bottom")
	}
	byCol := make(map[int64]any)
	for _, cell := range inserts[0].Cells {
		byCol[cell.ColumnID] = cell.Value
	}
	if byCol[11] != "A1" || byCol[12] != "2025-07-01" || byCol[13] != "abc123" || byCol[15] != "G01" {
		t.Fatalf("unexpected insert cells: %v", byCol)
	}
}

func TestReconcile_IdentityMatchBecomesUpdate(t *testing.T) {
	sheet := destSheet(invoiceRow(501, "A1", "2024-01-01", "OLD", 1.0, "X"))
	inserts, updates := reconcileDefaults(sheet, []Record{
		invoice("A1", "2025-07-01", "abc123", 100.0, "G01"),
	})
	if len(inserts) != 0 || len(updates) != 1 {
		t.Fatalf("expected pure update, got inserts=%d updates=%d", len(inserts), len(updates))
	}
	if updates[0].ID != 501 {
		t.Fatalf("expected update to row 501, got %d", updates[0].ID)
	}
}

func TestReconcile_IdentityTakesPrecedenceOverSignature(t *testing.T) {
	// Row 601 matches the record's identity, row 602 its signature.
	sheet := destSheet(
		invoiceRow(601, "A1", "2020-01-01", "ZZZ", 9.99, "X"),
		invoiceRow(602, "B2", "2025-07-01", "ABC123", 100.0, "G01"),
	)
	_, updates := reconcileDefaults(sheet, []Record{
		invoice("A1", "2025-07-01", "abc123", 100.0, "G01"),
	})
	if len(updates) != 1 || updates[0].ID != 601 {
		t.Fatalf("identity match must win, got %v", updates)
	}
}

func TestReconcile_SignatureFallbackWithoutIdentity(t *testing.T) {
	sheet := destSheet(invoiceRow(701, "", "2025-07-01", "abc123", 100.0, "G01"))
	inserts, updates := reconcileDefaults(sheet, []Record{
		invoice("", "2025-07-01", "ABC123", "100.00", "G01"),
	})
	if len(inserts) != 0 || len(updates) != 1 || updates[0].ID != 701 {
		t.Fatalf("signature fallback failed: inserts=%v updates=%v", inserts, updates)
	}
}

func TestReconcile_PartitionCompleteness(t *testing.T) {
	sheet := destSheet(invoiceRow(801, "A1", "2025-07-01", "abc123", 100.0, "G01"))
	records := []Record{
		invoice("A1", "2025-07-01", "abc123", 100.0, "G01"), // update
		invoice("C3", "2025-07-02", "def456", 200.0, "G03"), // insert
		{},                            // zero mapped cells, dropped
		{"Unmapped": "field"},         // zero mapped cells, dropped
		invoice("D4", "2025-07-03", "ghi789", 300.0, "P01"), // insert
	}
	inserts, updates := reconcileDefaults(sheet, records)
	if len(inserts)+len(updates) != 3 {
		t.Fatalf("partition must cover every record with mapped cells: inserts=%d updates=%d", len(inserts), len(updates))
	}
	if len(updates) != 1 || len(inserts) != 2 {
		t.Fatalf("unexpected partition: inserts=%d updates=%d", len(inserts), len(updates))
	}
}

func TestReconcile_DuplicateIdentitiesUpdateSameRow(t *testing.T) {
	sheet := destSheet(invoiceRow(901, "A1", "2025-07-01", "abc123", 100.0, "G01"))
	_, updates := reconcileDefaults(sheet, []Record{
		invoice("A1", "2025-07-01", "abc123", 100.0, "G01"),
		invoice("A1", "2025-07-05", "abc123", 150.0, "G01"),
	})
	if len(updates) != 2 {
		t.Fatalf("both duplicates must update, got %d", len(updates))
	}
	if updates[0].ID != 901 || updates[1].ID != 901 {
		t.Fatalf("duplicates must target the same row: %v", updates)
	}
}

func TestReconcile_Idempotence(t *testing.T) {
	records := []Record{
		invoice("A1", "2025-07-01", "abc123", 100.0, "G01"),
		invoice("B2", "2025-07-02", "def456", 200.0, "G03"),
	}

	inserts, updates := reconcileDefaults(destSheet(), records)
	if len(inserts) != 2 || len(updates) != 0 {
		t.Fatalf("first pass should insert everything: inserts=%d updates=%d", len(inserts), len(updates))
	}

	// Apply the first pass: destination now holds the inserted rows.
	var rows []smartsheet.Row
	for i, ins := range inserts {
		row := smartsheet.Row{ID: int64(1000 + i)}
		for _, cell := range ins.Cells {
			row.Cells = append(row.Cells, smartsheet.Cell{ColumnID: cell.ColumnID, Value: cell.Value})
		}
		rows = append(rows, row)
	}

	inserts, updates = reconcileDefaults(destSheet(rows...), records)
	if len(inserts) != 0 {
		t.Fatalf("second pass must not duplicate inserts, got %d", len(inserts))
	}
	if len(updates) != 2 {
		t.Fatalf("second pass should classify everything as update, got %d", len(updates))
	}
}

func TestReconcile_SignatureCollisionLastRowWins(t *testing.T) {
	sheet := destSheet(
		invoiceRow(111, "", "2025-07-01", "abc123", 100.0, "G01"),
		invoiceRow(222, "", "2025-07-01", "ABC123", "100.00", "G01"),
	)
	_, updates := reconcileDefaults(sheet, []Record{
		invoice("", "2025-07-01", "abc123", 100.0, "G01"),
	})
	if len(updates) != 1 || updates[0].ID != 222 {
		t.Fatalf("later indexed row must shadow earlier on collision: %v", updates)
	}
}
