package bindsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNormalizeBaseURL(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase invoices suffix", "https://api.bind.com.mx/api/invoices", "https://api.bind.com.mx/api/Invoices"},
		{"already cased", "https://api.bind.com.mx/api/Invoices", "https://api.bind.com.mx/api/Invoices"},
		{"v1 rewritten to api", "https://api.bind.com.mx/v1/Invoices", "https://api.bind.com.mx/api/Invoices"},
		{"v1 kept when api present", "https://host/api/v1/invoices", "https://host/api/v1/Invoices"},
		{"surrounding whitespace", "  https://host/api/invoices  ", "https://host/api/Invoices"},
		{"unrelated path untouched", "https://host/api/Payments", "https://host/api/Payments"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeBaseURL(tc.in); got != tc.want {
				t.Fatalf("NormalizeBaseURL(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestBuildInvoiceURL(t *testing.T) {
	base := "https://host/api/Invoices"
	cases := []struct {
		name   string
		base   string
		filter string
		want   string
	}{
		{"empty filter", base, "", base},
		{"blank filter", base, "   ", base},
		{"bare expression gets prefix", base, "Date ge 2025-01-01", base + "?$filter=Date ge 2025-01-01"},
		{"explicit prefix kept", base, "$filter=Status eq 1", base + "?$filter=Status eq 1"},
		{"leading question mark stripped", base, "?$filter=Status eq 1", base + "?$filter=Status eq 1"},
		{"ampersand when base has query", base + "?top=10", "Status eq 1", base + "?top=10&$filter=Status eq 1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := BuildInvoiceURL(tc.base, tc.filter); got != tc.want {
				t.Fatalf("BuildInvoiceURL(%q, %q) = %q, want %q", tc.base, tc.filter, got, tc.want)
			}
		})
	}
}

func TestFetchAllPages_FollowsNextLink(t *testing.T) {
	var gotAuth string
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		page := bindPage{}
		switch r.URL.Path {
		case "/api/Invoices":
			page.Value = []Record{{"UUID": "a"}, {"UUID": "b"}}
			page.NextLink = srv.URL + "/api/Invoices/page2"
		case "/api/Invoices/page2":
			page.Value = []Record{{"UUID": "c"}}
		default:
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	client := newBindClient(5*time.Second, testLogger())
	records, err := client.fetchAllPages(context.Background(), srv.URL+"/api/Invoices", "tok", "")
	if err != nil {
		t.Fatalf("fetchAllPages: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records across pages, got %d", len(records))
	}
	if records[2]["UUID"] != "c" {
		t.Fatalf("page order lost: %v", records)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("authorization header = %q", gotAuth)
	}
}

func TestFetchAllPages_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"bad token"}`)
	}))
	defer srv.Close()

	client := newBindClient(5*time.Second, testLogger())
	_, err := client.fetchAllPages(context.Background(), srv.URL+"/api/Invoices", "tok", "")
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
}
