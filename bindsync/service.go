package bindsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"bitbucket.org/mmdatafocus/bindsync_backend/config"
	"bitbucket.org/mmdatafocus/bindsync_backend/models"
	"bitbucket.org/mmdatafocus/bindsync_backend/smartsheet"
	"bitbucket.org/mmdatafocus/bindsync_backend/utils"
)

// accountLeaseTTL bounds how long one cycle may hold an account's lease; a
// crashed worker frees the account after this long.
const accountLeaseTTL = 5 * time.Minute

// lastCycleCacheTTL keeps the most recent cycle summary readable without the
// run-history database.
const lastCycleCacheTTL = 24 * time.Hour

func lastCycleKey(accountID string) string {
	return "bindsync:lastcycle:" + accountID
}

// Service wires the sheet client, the Bind client, and the run-history store
// into the fetch->reconcile->write pipeline. One instance is constructed at
// startup and shared by the HTTP handlers and the scheduler.
type Service struct {
	sheets     *smartsheet.Client
	bind       *bindClient
	logger     *logrus.Logger
	fetchLimit int
}

func NewService(sheets *smartsheet.Client, logger *logrus.Logger) *Service {
	return &Service{
		sheets:     sheets,
		bind:       newBindClient(config.BindTimeout(), logger),
		logger:     logger,
		fetchLimit: config.BindFetchConcurrency(),
	}
}

// ConfigSheet reads the raw config sheet.
func (s *Service) ConfigSheet(ctx context.Context) (*smartsheet.Sheet, error) {
	sheetID := config.ConfigSheetID()
	if sheetID == 0 {
		return nil, errors.New("SMARTSHEET_CONFIG_ID not set")
	}
	return s.sheets.GetSheet(ctx, sheetID)
}

// Sheet reads an arbitrary sheet; used by the passthrough endpoint.
func (s *Service) Sheet(ctx context.Context, sheetID int64) (*smartsheet.Sheet, error) {
	return s.sheets.GetSheet(ctx, sheetID)
}

// LoadAccounts reads and parses the config sheet, optionally narrowing to a
// single account id.
func (s *Service) LoadAccounts(ctx context.Context, filterID string) ([]AccountConfig, error) {
	sheet, err := s.ConfigSheet(ctx)
	if err != nil {
		return nil, err
	}
	accounts := ParseAccounts(sheet)
	if filterID == "" {
		return accounts, nil
	}
	filtered := accounts[:0]
	for _, acc := range accounts {
		if acc.ID == filterID {
			filtered = append(filtered, acc)
		}
	}
	return filtered, nil
}

// SyncAccounts is the manual-trigger entrypoint: fetch every account (and,
// in push mode, run the full cycle per account). The returned map carries a
// count or a captured error per account label; one account's failure never
// affects another's entry.
func (s *Service) SyncAccounts(ctx context.Context, accounts []AccountConfig, push bool, triggeredBy string) map[string]SyncOutcome {
	if !push {
		outcomes := make(map[string]SyncOutcome, len(accounts))
		for _, res := range s.FetchAccounts(ctx, accounts) {
			outcomes[res.Account.Label()] = outcomeOf(res)
		}
		return outcomes
	}

	attempted := make([]AccountConfig, 0, len(accounts))
	for _, acc := range accounts {
		if acc.Token == "" {
			s.logger.WithField("account", acc.Label()).Warn("no api token; skipped")
			continue
		}
		attempted = append(attempted, acc)
	}

	results := make([]SyncOutcome, len(attempted))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fetchLimit)
	for i, acc := range attempted {
		g.Go(func() error {
			stats, err := s.RunCycleWithLease(gctx, acc, triggeredBy)
			if err != nil {
				results[i] = SyncOutcome{Error: err.Error()}
				return nil
			}
			count := stats.Fetched
			results[i] = SyncOutcome{Count: &count}
			return nil
		})
	}
	_ = g.Wait()

	outcomes := make(map[string]SyncOutcome, len(attempted))
	for i, acc := range attempted {
		outcomes[acc.Label()] = results[i]
	}
	return outcomes
}

func outcomeOf(res AccountResult) SyncOutcome {
	if res.Err != nil {
		return SyncOutcome{Error: res.Err.Error()}
	}
	count := len(res.Records)
	return SyncOutcome{Count: &count}
}

// RunCycleWithLease wraps RunCycle in the per-account Redis lease so a manual
// trigger and a scheduler tick cannot run the same account concurrently.
// Without Redis configured the cycle runs unguarded.
func (s *Service) RunCycleWithLease(ctx context.Context, account AccountConfig, triggeredBy string) (CycleStats, error) {
	locker := config.GetRedisLock()
	if locker == nil {
		return s.RunCycle(ctx, account, triggeredBy)
	}

	lock, err := locker.Obtain(ctx, "bindsync:account:"+account.ID, accountLeaseTTL, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			s.logger.WithField("account", account.Label()).Info("cycle already running elsewhere; skipped")
			return CycleStats{}, fmt.Errorf("account %s: sync already in progress", account.ID)
		}
		return CycleStats{}, err
	}
	defer lock.Release(context.WithoutCancel(ctx))

	return s.RunCycle(ctx, account, triggeredBy)
}

// RunCycle executes one fetch->reconcile->write pass for a single account and
// records it in run history. The fetch error is the only one that fails the
// cycle; write failures are captured in the run and the cycle still counts as
// partial rather than failed.
func (s *Service) RunCycle(ctx context.Context, account AccountConfig, triggeredBy string) (CycleStats, error) {
	ctx = utils.SetAccountIdInContext(ctx, account.ID)
	if triggeredBy == "" {
		if v, ok := utils.GetTriggeredByFromContext(ctx); ok {
			triggeredBy = v
		}
	}
	run := models.StartSyncRun(ctx, account.ID, account.Label(), account.DestSheetID, triggeredBy)

	records, err := s.bind.fetchAllPages(ctx, account.BaseURL, account.Token, account.Filter)
	if err != nil {
		models.RecordSyncError(ctx, run, "fetch", err.Error(), nil)
		models.FinishSyncRun(ctx, run, models.SyncRunStatusFailed, 0, 0, 0, 1)
		_ = config.RemoveRedisKey(lastCycleKey(account.ID))
		return CycleStats{}, err
	}

	stats := CycleStats{Fetched: len(records)}
	if account.DestSheetID != 0 {
		pushStats := s.PushToSheet(ctx, account, records, run)
		stats.Inserted = pushStats.Inserted
		stats.Updated = pushStats.Updated
		stats.Errors = pushStats.Errors
	}

	status := models.SyncRunStatusSuccess
	if stats.Errors > 0 {
		status = models.SyncRunStatusPartial
	}
	models.FinishSyncRun(ctx, run, status, stats.Fetched, stats.Inserted, stats.Updated, stats.Errors)
	if summary, err := utils.MarshalToJSON(stats); err == nil {
		_ = config.SetRedisValue(lastCycleKey(account.ID), summary, lastCycleCacheTTL)
	}

	s.logger.WithFields(logrus.Fields{
		"account":  account.Label(),
		"fetched":  stats.Fetched,
		"inserted": stats.Inserted,
		"updated":  stats.Updated,
		"errors":   stats.Errors,
		"trigger":  triggeredBy,
	}).Info("cycle finished")
	return stats, nil
}
