package bindsync

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"bitbucket.org/mmdatafocus/bindsync_backend/utils"
)

// FetchAccounts retrieves every account's invoices concurrently, bounded by
// the configured fan-out limit. Accounts without an API token are skipped
// with a warning and do not appear in the results. A failing account yields
// a result with its captured error; siblings are never cancelled or failed
// by it.
func (s *Service) FetchAccounts(ctx context.Context, accounts []AccountConfig) []AccountResult {
	attempted := make([]AccountConfig, 0, len(accounts))
	for _, acc := range accounts {
		if acc.Token == "" {
			s.logger.WithField("account", acc.Label()).Warn("no api token; skipped")
			continue
		}
		attempted = append(attempted, acc)
	}

	results := make([]AccountResult, len(attempted))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fetchLimit)
	for i, acc := range attempted {
		g.Go(func() error {
			actx := utils.SetAccountIdInContext(gctx, acc.ID)
			records, err := s.bind.fetchAllPages(actx, acc.BaseURL, acc.Token, acc.Filter)
			results[i] = AccountResult{Account: acc, Records: records, Err: err}
			// Errors are captured per account, never returned, so one
			// account's outage cannot cancel the group.
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for _, res := range results {
		if res.Err == nil {
			total += len(res.Records)
		}
	}
	s.logger.WithFields(logrus.Fields{
		"accounts": len(attempted),
		"invoices": total,
	}).Info("accounts fetched")
	return results
}
