package bindsync

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"bitbucket.org/mmdatafocus/bindsync_backend/config"
	"bitbucket.org/mmdatafocus/bindsync_backend/models"
	"bitbucket.org/mmdatafocus/bindsync_backend/smartsheet"
	"bitbucket.org/mmdatafocus/bindsync_backend/utils"
)

// Scheduler drives per-account sync cycles from the config sheet: each tick
// it re-reads every account row, decides due-ness from the persisted
// last-execution timestamp, runs due cycles, and writes the new timestamps
// back. All scheduling state lives in the sheet, never in process memory.
type Scheduler struct {
	svc    *Service
	logger *logrus.Logger
	tick   time.Duration

	// now is swappable for tests.
	now func() time.Time
}

func NewScheduler(svc *Service, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		svc:    svc,
		logger: logger,
		tick:   config.JobTickInterval(),
		now:    time.Now,
	}
}

// Run loops until the context is cancelled. The first pass happens
// immediately; later passes follow the tick period.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.WithField("tick", s.tick.String()).Info("scheduler started")
	timer := time.NewTicker(s.tick)
	defer timer.Stop()

	for {
		s.processTick(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-timer.C:
		}
	}
}

func (s *Scheduler) processTick(ctx context.Context) {
	s.logger.Debug("scheduler tick")
	sheet, err := s.svc.ConfigSheet(ctx)
	if err != nil {
		config.LogError(s.logger, "bindsync", "processTick", "read config sheet", nil, err)
		return
	}

	colIndex := ColumnIndex(sheet.Columns)
	lastCol := colIndex[Slug(colLastRun)]
	nextCol := colIndex[Slug(colNextRun)]

	now := s.now()
	var due []AccountConfig
	for _, acc := range ParseAccounts(sheet) {
		if acc.IntervalMinutes <= 0 {
			continue
		}
		if acc.Token == "" {
			s.logger.WithField("account", acc.Label()).Warn("no api token; skipped")
			continue
		}
		if !IsDue(now, acc.LastExecutedAt, acc.IntervalMinutes) {
			s.logger.WithFields(logrus.Fields{
				"account": acc.Label(),
				"last":    acc.LastExecutedAt,
			}).Debug("not due yet")
			continue
		}
		due = append(due, acc)
	}
	if len(due) == 0 {
		return
	}

	ctx = utils.SetTriggeredByInContext(ctx, models.SyncTriggeredSystem)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.svc.fetchLimit)
	for _, acc := range due {
		g.Go(func() error {
			s.runDueAccount(gctx, acc, lastCol, nextCol)
			return nil
		})
	}
	_ = g.Wait()
}

// runDueAccount executes one due row's cycle. On failure the timestamps stay
// untouched, so the row remains due and retries on the next tick.
func (s *Scheduler) runDueAccount(ctx context.Context, acc AccountConfig, lastCol, nextCol int64) {
	s.logger.WithFields(logrus.Fields{
		"account":  acc.Label(),
		"interval": acc.IntervalMinutes,
		"last":     acc.LastExecutedAt,
	}).Info("running scheduled cycle")

	if _, err := s.svc.RunCycleWithLease(ctx, acc, models.SyncTriggeredSystem); err != nil {
		config.LogError(s.logger, "bindsync", "runDueAccount", acc.Label(), nil, err)
		return
	}

	if err := s.persistTimestamps(ctx, acc, lastCol, nextCol); err != nil {
		config.LogError(s.logger, "bindsync", "runDueAccount", "persist timestamps for "+acc.Label(), nil, err)
	}
}

// persistTimestamps writes "last executed = now" and "next = now + interval"
// back to the account's config row.
func (s *Scheduler) persistTimestamps(ctx context.Context, acc AccountConfig, lastCol, nextCol int64) error {
	if lastCol == 0 || nextCol == 0 {
		s.logger.Warn("config sheet lacks execution timestamp columns; skipping persist")
		return nil
	}

	now := s.now().UTC().Truncate(time.Second)
	next := now.Add(time.Duration(acc.IntervalMinutes) * time.Minute)

	update := smartsheet.RowUpdate{
		ID: acc.RowID,
		Cells: []smartsheet.NewCell{
			{ColumnID: lastCol, Value: FormatSheetTime(now)},
			{ColumnID: nextCol, Value: FormatSheetTime(next)},
		},
	}
	if _, err := s.svc.sheets.UpdateRows(ctx, config.ConfigSheetID(), []smartsheet.RowUpdate{update}); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"account": acc.Label(),
		"last":    FormatSheetTime(now),
		"next":    FormatSheetTime(next),
	}).Info("execution timestamps updated")
	return nil
}

// IsDue reports whether an account's interval has elapsed since its last
// successful cycle. A missing last-execution timestamp counts as infinitely
// long ago, so the row is always due. The boundary is inclusive: exactly
// interval minutes elapsed is due.
func IsDue(now time.Time, last *time.Time, intervalMinutes int) bool {
	if last == nil {
		return true
	}
	return now.Sub(*last) >= time.Duration(intervalMinutes)*time.Minute
}
