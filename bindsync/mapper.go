package bindsync

import (
	"encoding/json"
	"strings"
	"unicode"

	"bitbucket.org/mmdatafocus/bindsync_backend/smartsheet"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"
)

// MappingRules maps a Bind source field name to a destination column title.
type MappingRules map[string]string

// Source field names with a fixed role in identity/signature matching.
const (
	fieldUUID    = "UUID"
	fieldDate    = "Date"
	fieldRFC     = "RFC"
	fieldTotal   = "Total"
	fieldCFDIUse = "CFDIUse"
)

// DefaultRules is the built-in mapping used when an account has no rules
// configured or its configured rules are unusable.
func DefaultRules() MappingRules {
	return MappingRules{
		fieldUUID:    "UUID",
		fieldDate:    "Fecha emisión",
		fieldRFC:     "RFC Receptor",
		fieldTotal:   "Total",
		fieldCFDIUse: "Tipo CFDI",
	}
}

type rulesDocument struct {
	Map MappingRules `json:"map"`
}

// ResolveRules parses an account's rules JSON (`{"map": {src: destColumn}}`).
// Absent, malformed, or empty rules fall back to the defaults with a warning;
// bad configuration is never fatal.
func ResolveRules(raw string, logger *logrus.Logger, label string) MappingRules {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultRules()
	}
	var doc rulesDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		logger.WithFields(logrus.Fields{
			"account": label,
			"error":   err.Error(),
		}).Warn("bad mapping rules json; using defaults")
		return DefaultRules()
	}
	if len(doc.Map) == 0 {
		return DefaultRules()
	}
	return doc.Map
}

// Slug normalizes a column title for lookup: NFD decomposition, drop anything
// outside ASCII (which removes the detached diacritic marks), lower-case,
// strip spaces. "Fecha emisión" and "fecha emision" land on the same key.
func Slug(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if r == ' ' || r > unicode.MaxASCII {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// ColumnIndex maps slugged column titles to column ids for a live sheet.
func ColumnIndex(cols []smartsheet.Column) map[string]int64 {
	index := make(map[string]int64, len(cols))
	for _, col := range cols {
		index[Slug(col.Title)] = col.ID
	}
	return index
}

// BuildCells maps a record's fields through the rules into destination cells.
// Rules whose destination column is missing from the sheet and fields absent
// from the record are skipped. Fields whose source name begins with "date"
// are coerced through date normalization.
func BuildCells(rec Record, rules MappingRules, colIndex map[string]int64) []smartsheet.NewCell {
	cells := make([]smartsheet.NewCell, 0, len(rules))
	for srcField, destCol := range rules {
		colID, ok := colIndex[Slug(destCol)]
		if !ok {
			continue
		}
		val, ok := rec[srcField]
		if !ok || val == nil {
			continue
		}
		if strings.HasPrefix(strings.ToLower(srcField), "date") {
			val = isoDate(toString(val))
		}
		cells = append(cells, smartsheet.NewCell{ColumnID: colID, Value: val})
	}
	return cells
}
