package bindsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func invoiceServer(t *testing.T, count int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := bindPage{}
		for i := 0; i < count; i++ {
			page.Value = append(page.Value, Record{"UUID": "x"})
		}
		json.NewEncoder(w).Encode(page)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchAccounts_FailureIsolation(t *testing.T) {
	first := invoiceServer(t, 2)
	third := invoiceServer(t, 5)

	// The second account's server never responds within the client timeout.
	stuck := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	t.Cleanup(stuck.Close)

	svc := &Service{
		bind:       newBindClient(200*time.Millisecond, testLogger()),
		logger:     testLogger(),
		fetchLimit: 4,
	}
	accounts := []AccountConfig{
		{ID: "a1", DisplayName: "One", Token: "t1", BaseURL: first.URL + "/api/Invoices"},
		{ID: "a2", DisplayName: "Two", Token: "t2", BaseURL: stuck.URL + "/api/Invoices"},
		{ID: "a3", DisplayName: "Three", Token: "t3", BaseURL: third.URL + "/api/Invoices"},
	}

	results := svc.FetchAccounts(context.Background(), accounts)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Err != nil || len(results[0].Records) != 2 {
		t.Fatalf("account one: err=%v records=%d", results[0].Err, len(results[0].Records))
	}
	if results[1].Err == nil {
		t.Fatal("account two should carry its timeout error")
	}
	if results[2].Err != nil || len(results[2].Records) != 5 {
		t.Fatalf("account three: err=%v records=%d", results[2].Err, len(results[2].Records))
	}
}

func TestFetchAccounts_SkipsMissingToken(t *testing.T) {
	srv := invoiceServer(t, 1)

	svc := &Service{
		bind:       newBindClient(time.Second, testLogger()),
		logger:     testLogger(),
		fetchLimit: 2,
	}
	accounts := []AccountConfig{
		{ID: "a1", Token: "", BaseURL: srv.URL},
		{ID: "a2", Token: "t2", BaseURL: srv.URL + "/api/Invoices"},
	}

	results := svc.FetchAccounts(context.Background(), accounts)
	if len(results) != 1 {
		t.Fatalf("token-less account must not appear, got %d results", len(results))
	}
	if results[0].Account.ID != "a2" {
		t.Fatalf("wrong account attempted: %s", results[0].Account.ID)
	}
}
