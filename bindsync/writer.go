package bindsync

import (
	"context"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/bindsync_backend/models"
)

// PushToSheet reconciles fetched records against the account's destination
// sheet and commits the result: one batched append for inserts, one batched
// update for existing rows, inserts first. Empty batches issue no call.
// Every failure here is terminal for its batch only; it is logged, recorded
// on the run, and never propagated.
func (s *Service) PushToSheet(ctx context.Context, account AccountConfig, records []Record, run *models.SyncRun) CycleStats {
	label := account.Label()
	stats := CycleStats{Fetched: len(records)}

	dest, err := s.sheets.GetSheet(ctx, account.DestSheetID)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"account": label,
			"sheet":   account.DestSheetID,
			"error":   err.Error(),
		}).Error("cannot open destination sheet")
		models.RecordSyncError(ctx, run, "open-sheet", err.Error(), nil)
		stats.Errors++
		return stats
	}

	rules := ResolveRules(account.RulesJSON, s.logger, label)
	colIndex := ColumnIndex(dest.Columns)
	inserts, updates := Reconcile(dest, records, rules, colIndex, s.logger, label)

	if len(inserts) > 0 {
		count, err := s.sheets.AddRows(ctx, account.DestSheetID, inserts)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"account": label,
				"rows":    len(inserts),
				"error":   err.Error(),
			}).Error("insert batch failed")
			models.RecordSyncError(ctx, run, "insert", err.Error(), nil)
			stats.Errors++
		} else {
			s.logger.WithFields(logrus.Fields{"account": label, "rows": count}).Info("rows inserted")
			stats.Inserted = count
		}
	}

	if len(updates) > 0 {
		count, err := s.sheets.UpdateRows(ctx, account.DestSheetID, updates)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"account": label,
				"rows":    len(updates),
				"error":   err.Error(),
			}).Error("update batch failed")
			models.RecordSyncError(ctx, run, "update", err.Error(), nil)
			stats.Errors++
		} else {
			s.logger.WithFields(logrus.Fields{"account": label, "rows": count}).Info("rows updated")
			stats.Updated = count
		}
	}

	return stats
}
