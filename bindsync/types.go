package bindsync

import (
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/bindsync_backend/smartsheet"
)

const defaultBindBaseURL = "https://api.bind.com.mx/api/Invoices"

// Config sheet column titles, matched by slug so operators can vary
// accents/case/spacing freely.
const (
	colAccountID   = "ID"
	colDisplayName = "Cliente"
	colAPIToken    = "API Token"
	colAPIURL      = "API URL"
	colFilter      = "Filtro"
	colDestSheet   = "Hoja destino ID"
	colRulesJSON   = "Reglas JSON"
	colInterval    = "Intervalo (minutos)"
	colLastRun     = "Ultima ejecucion"
	colNextRun     = "Siguiente ejecucion"
)

// Record is one fetched invoice: required keys UUID/Date/RFC/Total/CFDIUse
// plus arbitrary extra fields that pass through when mapped.
type Record map[string]any

// AccountConfig is one parsed row of the config sheet.
type AccountConfig struct {
	ID              string
	DisplayName     string
	Token           string
	BaseURL         string
	Filter          string
	DestSheetID     int64
	RulesJSON       string
	IntervalMinutes int
	LastExecutedAt  *time.Time
	NextExecutedAt  *time.Time

	// RowID is the config-sheet row backing this account; the scheduler
	// writes execution timestamps back to it.
	RowID int64
}

// Label identifies the account in logs.
func (a AccountConfig) Label() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return "ID-" + a.ID
}

// AccountResult is the outcome of one account's fetch: records or a captured error.
type AccountResult struct {
	Account AccountConfig
	Records []Record
	Err     error
}

// SyncOutcome is the per-account entry returned by manual triggers.
type SyncOutcome struct {
	Count *int   `json:"count,omitempty"`
	Error string `json:"error,omitempty"`
}

// CycleStats summarizes one fetch->reconcile->write cycle.
type CycleStats struct {
	Fetched  int
	Inserted int
	Updated  int
	Errors   int
}

// SyncJobPayload is the Pub/Sub message body dispatching an async push cycle.
type SyncJobPayload struct {
	AccountId   string `json:"account_id"`
	TriggeredBy string `json:"triggered_by"`
}

// PubSubPushEnvelope is the wrapper Google Pub/Sub push subscriptions deliver.
type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// PushRequest is the optional JSON body of the manual push trigger.
type PushRequest struct {
	ID string `json:"id" binding:"omitempty,max=64"`
}

// ParseAccounts converts config-sheet rows into account configs, preserving
// sheet order. Rows are not filtered here; callers decide what to skip.
func ParseAccounts(sheet *smartsheet.Sheet) []AccountConfig {
	titles := make(map[int64]string, len(sheet.Columns))
	for _, col := range sheet.Columns {
		titles[col.ID] = Slug(col.Title)
	}

	accounts := make([]AccountConfig, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		values := make(map[string]any, len(row.Cells))
		for _, cell := range row.Cells {
			if slug, ok := titles[cell.ColumnID]; ok {
				values[slug] = cell.DisplayOrValue()
			}
		}

		acc := AccountConfig{
			ID:          fieldString(values, colAccountID),
			DisplayName: fieldString(values, colDisplayName),
			Token:       fieldString(values, colAPIToken),
			BaseURL:     fieldString(values, colAPIURL),
			Filter:      fieldString(values, colFilter),
			RulesJSON:   fieldString(values, colRulesJSON),
			RowID:       row.ID,
		}
		if acc.BaseURL == "" {
			acc.BaseURL = defaultBindBaseURL
		}
		acc.DestSheetID = fieldInt64(values, colDestSheet)
		acc.IntervalMinutes = int(fieldInt64(values, colInterval))
		acc.LastExecutedAt = ParseSheetTime(fieldString(values, colLastRun))
		acc.NextExecutedAt = ParseSheetTime(fieldString(values, colNextRun))

		accounts = append(accounts, acc)
	}
	return accounts
}

func fieldString(values map[string]any, title string) string {
	v, ok := values[Slug(title)]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(toString(v))
}

func fieldInt64(values map[string]any, title string) int64 {
	s := fieldString(values, title)
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	// Sheet numerics often come back as "30.0".
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}

// ParseSheetTime accepts the timestamp shapes a sheet cell can hold:
// RFC3339 with offset or Z, and naive "2006-01-02T15:04:05" treated as UTC.
// Unparsable or empty values yield nil.
func ParseSheetTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// FormatSheetTime renders a timestamp the way the scheduler persists it:
// ISO-8601 UTC, second precision, explicit Z suffix.
func FormatSheetTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z07:00")
}
