package bindsync

import (
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/bindsync_backend/smartsheet"
)

// rowIndex holds the two destination lookups: identity value -> row id for
// rows carrying a non-empty identity, and signature -> row id for every row.
type rowIndex struct {
	identity  map[string]int64
	signature map[Signature]int64
}

type signatureColumns struct {
	identityCol int64
	date        int64
	taxID       int64
	total       int64
	docType     int64
}

func resolveSignatureColumns(rules MappingRules, colIndex map[string]int64) signatureColumns {
	lookup := func(field string) int64 {
		return colIndex[Slug(rules[field])]
	}
	return signatureColumns{
		identityCol: lookup(fieldUUID),
		date:        lookup(fieldDate),
		taxID:       lookup(fieldRFC),
		total:       lookup(fieldTotal),
		docType:     lookup(fieldCFDIUse),
	}
}

// buildRowIndex indexes the destination sheet. When two rows derive the same
// signature the later row shadows the earlier one; that collision is logged
// because it usually means duplicated rows in the destination.
func buildRowIndex(sheet *smartsheet.Sheet, cols signatureColumns, logger *logrus.Logger, label string) rowIndex {
	index := rowIndex{
		identity:  make(map[string]int64, len(sheet.Rows)),
		signature: make(map[Signature]int64, len(sheet.Rows)),
	}

	for _, row := range sheet.Rows {
		var date, taxID, total, docType any
		var identity string
		for _, cell := range row.Cells {
			if cols.identityCol != 0 && cell.ColumnID == cols.identityCol && cell.Value != nil {
				identity = NormalizeIdentity(cell.Value)
			}
			switch cell.ColumnID {
			case cols.date:
				date = cell.DisplayOrValue()
			case cols.taxID:
				taxID = cell.DisplayOrValue()
			case cols.total:
				total = cell.DisplayOrValue()
			case cols.docType:
				docType = cell.DisplayOrValue()
			}
		}

		if identity != "" {
			index.identity[identity] = row.ID
		}
		sig := MakeSignature(date, taxID, total, docType)
		if prev, ok := index.signature[sig]; ok && prev != row.ID {
			logger.WithFields(logrus.Fields{
				"account":    label,
				"signature":  sig,
				"shadowed":   prev,
				"winningRow": row.ID,
			}).Warn("signature collision in destination; later row shadows earlier")
		}
		index.signature[sig] = row.ID
	}
	return index
}

// Reconcile partitions fetched records into inserts and updates against the
// destination sheet. Identity match takes precedence over signature match;
// records that resolve to no row become appends. Records mapping to zero
// cells carry nothing to write and are dropped.
func Reconcile(sheet *smartsheet.Sheet, records []Record, rules MappingRules, colIndex map[string]int64, logger *logrus.Logger, label string) ([]smartsheet.RowInsert, []smartsheet.RowUpdate) {
	cols := resolveSignatureColumns(rules, colIndex)
	index := buildRowIndex(sheet, cols, logger, label)

	var inserts []smartsheet.RowInsert
	var updates []smartsheet.RowUpdate

	for _, rec := range records {
		cells := BuildCells(rec, rules, colIndex)
		if len(cells) == 0 {
			continue
		}

		identity := NormalizeIdentity(rec[fieldUUID])
		sig := MakeSignature(rec[fieldDate], rec[fieldRFC], rec[fieldTotal], rec[fieldCFDIUse])

		var rowID int64
		if identity != "" {
			rowID = index.identity[identity]
		}
		if rowID == 0 {
			rowID = index.signature[sig]
		}

		if rowID != 0 {
			updates = append(updates, smartsheet.RowUpdate{ID: rowID, Cells: cells})
		} else {
			inserts = append(inserts, smartsheet.RowInsert{ToBottom: true, Cells: cells})
		}
	}
	return inserts, updates
}
