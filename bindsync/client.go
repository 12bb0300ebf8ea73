package bindsync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/bindsync_backend/utils"
)

type bindClient struct {
	http   *http.Client
	logger *logrus.Logger
}

func newBindClient(timeout time.Duration, logger *logrus.Logger) *bindClient {
	return &bindClient{
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type bindPage struct {
	Value    []Record `json:"value"`
	NextLink string   `json:"nextLink"`
}

// NormalizeBaseURL applies the URL fix-ups operator-entered values need:
// lower-case "/invoices" suffixes become the cased path the API expects, and
// "/v1/" endpoints are rewritten onto the "/api/" surface.
func NormalizeBaseURL(base string) string {
	base = strings.TrimSpace(base)
	if strings.HasSuffix(strings.ToLower(base), "/invoices") {
		base = base[:len(base)-len("/invoices")] + "/Invoices"
	}
	if strings.Contains(base, "/v1/") && !strings.Contains(base, "/api/") {
		base = strings.Replace(base, "/v1/", "/api/", 1)
	}
	return base
}

// BuildInvoiceURL attaches an optional OData filter to the base URL, adding
// the "$filter=" prefix and the right separator when the operator left them off.
func BuildInvoiceURL(base string, filter string) string {
	if strings.TrimSpace(filter) == "" {
		return base
	}
	clean := strings.TrimSpace(filter)
	clean = strings.TrimPrefix(clean, "?")
	if !strings.HasPrefix(strings.ToLower(clean), "$filter=") {
		clean = "$filter=" + clean
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + clean
}

// fetchAllPages walks the paginated invoice listing: accumulate each page's
// "value" array and follow "nextLink" until the API stops returning one.
func (c *bindClient) fetchAllPages(ctx context.Context, baseURL string, token string, filter string) ([]Record, error) {
	url := BuildInvoiceURL(NormalizeBaseURL(baseURL), filter)
	var records []Record

	page := 1
	for url != "" {
		fields := logrus.Fields{
			"page": page,
			"url":  url,
		}
		if accID, ok := utils.GetAccountIdFromContext(ctx); ok {
			fields["account"] = accID
		}
		c.logger.WithFields(fields).Debug("bind fetch page")

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("bind api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		var parsed bindPage
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, err
		}
		records = append(records, parsed.Value...)
		url = parsed.NextLink
		page++
	}
	return records, nil
}
