package smartsheet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/bindsync_backend/utils"
	"github.com/sirupsen/logrus"
)

const (
	payloadLogLimit  = 1200
	responseLogLimit = 800
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *logrus.Logger
}

func NewClient(token string, logger *logrus.Logger) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, utils.ErrMissingCredential
	}
	baseURL := strings.TrimSpace(os.Getenv("SMARTSHEET_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.smartsheet.com/2.0"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}, nil
}

// GetSheet reads the whole sheet: column metadata plus every row's cells.
func (c *Client) GetSheet(ctx context.Context, sheetID int64) (*Sheet, error) {
	endpoint := fmt.Sprintf("%s/sheets/%d", c.baseURL, sheetID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("smartsheet api error %d: %s", resp.StatusCode, utils.Truncate(strings.TrimSpace(string(body)), responseLogLimit))
	}

	var sheet Sheet
	if err := json.Unmarshal(body, &sheet); err != nil {
		return nil, err
	}
	return &sheet, nil
}

type writeResult struct {
	Message string            `json:"message"`
	Result  []json.RawMessage `json:"result"`
}

// AddRows appends rows at the bottom of the sheet in one batched call and
// returns the number of rows the API reports as created.
func (c *Client) AddRows(ctx context.Context, sheetID int64, rows []RowInsert) (int, error) {
	return c.writeRows(ctx, http.MethodPost, sheetID, rows, "inserted")
}

// UpdateRows rewrites existing rows by id in one batched call and returns the
// number of rows the API reports as modified.
func (c *Client) UpdateRows(ctx context.Context, sheetID int64, rows []RowUpdate) (int, error) {
	return c.writeRows(ctx, http.MethodPut, sheetID, rows, "updated")
}

func (c *Client) writeRows(ctx context.Context, method string, sheetID int64, payload any, tag string) (int, error) {
	endpoint := fmt.Sprintf("%s/sheets/%d/rows", c.baseURL, sheetID)
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	c.logger.WithFields(logrus.Fields{
		"method": method,
		"url":    endpoint,
		"tag":    tag,
	}).Info("smartsheet write")
	c.logger.WithFields(logrus.Fields{
		"tag":  tag,
		"body": utils.Truncate(string(body), payloadLogLimit),
	}).Debug("smartsheet write payload")

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("smartsheet api error %d: %s", resp.StatusCode, utils.Truncate(strings.TrimSpace(string(respBody)), responseLogLimit))
	}

	var result writeResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return 0, err
	}
	c.logger.WithFields(logrus.Fields{
		"tag":      tag,
		"count":    len(result.Result),
		"response": utils.Truncate(string(respBody), responseLogLimit),
	}).Debug("smartsheet write response")
	return len(result.Result), nil
}
