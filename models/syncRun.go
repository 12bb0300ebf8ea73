package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/bindsync_backend/config"
	"bitbucket.org/mmdatafocus/bindsync_backend/utils"
)

const (
	SyncRunStatusQueued  = "queued"
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
	SyncRunStatusPartial = "partial"
)

const (
	SyncTriggeredManual = "manual"
	SyncTriggeredPush   = "push"
	SyncTriggeredSystem = "system"
)

// SyncRun records one fetch->reconcile->write cycle for one account row.
type SyncRun struct {
	ID             uint       `gorm:"primary_key" json:"id"`
	AccountId      string     `gorm:"index;size:64;not null" json:"account_id"`
	AccountName    string     `gorm:"size:255" json:"account_name"`
	DestSheetId    int64      `json:"dest_sheet_id"`
	Status         string     `gorm:"size:20;not null" json:"status"`
	TriggeredBy    string     `gorm:"size:20" json:"triggered_by"`
	RecordsFetched int        `json:"records_fetched"`
	RowsInserted   int        `json:"rows_inserted"`
	RowsUpdated    int        `json:"rows_updated"`
	ErrorCount     int        `json:"error_count"`
	StartedAt      *time.Time `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at"`
	DurationMs     int64      `json:"duration_ms"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// SyncError records one captured failure inside a run; the run itself keeps going.
type SyncError struct {
	ID        uint      `gorm:"primary_key" json:"id"`
	SyncRunId uint      `gorm:"index;not null" json:"sync_run_id"`
	AccountId string    `gorm:"index;size:64" json:"account_id"`
	Stage     string    `gorm:"size:32" json:"stage"`
	Message   string    `gorm:"type:text" json:"message"`
	Payload   []byte    `gorm:"type:json" json:"payload"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// MigrateTable creates/updates the run-history schema.
func MigrateTable() {
	db := config.GetDB()
	if db == nil {
		return
	}
	if err := db.AutoMigrate(&SyncRun{}, &SyncError{}); err != nil {
		config.LogError(config.GetLogger(), "models", "MigrateTable", "automigrate", nil, err)
	}
}

// StartSyncRun persists a running run record. Run history is best effort: with
// no database configured it returns a zero-id run and every later persistence
// call becomes a no-op.
func StartSyncRun(ctx context.Context, accountId string, accountName string, destSheetId int64, triggeredBy string) *SyncRun {
	now := time.Now()
	run := &SyncRun{
		AccountId:   accountId,
		AccountName: accountName,
		DestSheetId: destSheetId,
		Status:      SyncRunStatusRunning,
		TriggeredBy: triggeredBy,
		StartedAt:   &now,
	}
	db := config.GetDB()
	if db == nil {
		return run
	}
	if err := db.WithContext(ctx).Create(run).Error; err != nil {
		config.LogError(config.GetLogger(), "models", "StartSyncRun", accountId, nil, err)
	}
	return run
}

// FinishSyncRun stamps the run's terminal status and counters.
func FinishSyncRun(ctx context.Context, run *SyncRun, status string, fetched, inserted, updated, errorCount int) {
	now := time.Now()
	run.Status = status
	run.FinishedAt = &now
	run.RecordsFetched = fetched
	run.RowsInserted = inserted
	run.RowsUpdated = updated
	run.ErrorCount = errorCount
	if run.StartedAt != nil {
		run.DurationMs = now.Sub(*run.StartedAt).Milliseconds()
	}

	db := config.GetDB()
	if db == nil || run.ID == 0 {
		return
	}
	updates := map[string]interface{}{
		"status":          status,
		"finished_at":     now,
		"duration_ms":     run.DurationMs,
		"records_fetched": fetched,
		"rows_inserted":   inserted,
		"rows_updated":    updated,
		"error_count":     errorCount,
	}
	if err := db.WithContext(ctx).Model(run).Updates(updates).Error; err != nil {
		config.LogError(config.GetLogger(), "models", "FinishSyncRun", run.AccountId, nil, err)
	}
}

// RecordSyncError attaches a captured failure to a run.
func RecordSyncError(ctx context.Context, run *SyncRun, stage string, message string, payload []byte) {
	db := config.GetDB()
	if db == nil || run.ID == 0 {
		return
	}
	errRec := SyncError{
		SyncRunId: run.ID,
		AccountId: run.AccountId,
		Stage:     stage,
		Message:   message,
		Payload:   payload,
	}
	if err := db.WithContext(ctx).Create(&errRec).Error; err != nil {
		config.LogError(config.GetLogger(), "models", "RecordSyncError", run.AccountId, nil, err)
	}
}

// ListSyncRuns returns the most recent runs, newest first.
func ListSyncRuns(ctx context.Context, accountId string, limit int) ([]SyncRun, error) {
	db := config.GetDB()
	if db == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := db.WithContext(ctx).Order("id DESC").Limit(limit)
	if accountId != "" {
		q = q.Where("account_id = ?", accountId)
	}
	var runs []SyncRun
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// GetSyncRun loads one run with its captured errors.
func GetSyncRun(ctx context.Context, id uint) (*SyncRun, []SyncError, error) {
	db := config.GetDB()
	if db == nil {
		return nil, nil, nil
	}
	var run SyncRun
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, utils.ErrorRecordNotFound
		}
		return nil, nil, err
	}
	var errs []SyncError
	if err := db.WithContext(ctx).Where("sync_run_id = ?", id).Order("id").Find(&errs).Error; err != nil {
		return nil, nil, err
	}
	return &run, errs, nil
}
