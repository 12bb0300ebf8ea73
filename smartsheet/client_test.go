package smartsheet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/bindsync_backend/utils"
)

func clientLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("SMARTSHEET_BASE_URL", srv.URL)
	c, err := NewClient("test-token", clientLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClient_EmptyToken(t *testing.T) {
	if _, err := NewClient("  ", clientLogger()); !errors.Is(err, utils.ErrMissingCredential) {
		t.Fatalf("expected missing credential error, got %v", err)
	}
}

func TestGetSheet(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sheets/42" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("authorization header = %q", got)
		}
		fmt.Fprint(w, `{"id":42,"name":"Config","columns":[{"id":1,"title":"ID"}],"rows":[{"id":10,"cells":[{"columnId":1,"value":"acme"}]}]}`)
	})

	sheet, err := c.GetSheet(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetSheet: %v", err)
	}
	if sheet.ID != 42 || len(sheet.Columns) != 1 || len(sheet.Rows) != 1 {
		t.Fatalf("unexpected sheet: %+v", sheet)
	}
}

func TestWriteRows_CountComesFromResponse(t *testing.T) {
	// The API may create fewer rows than were sent; the reported count must
	// reflect its result array, not the request size.
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			fmt.Fprint(w, `{"message":"SUCCESS","result":[{}]}`)
		case http.MethodPut:
			fmt.Fprint(w, `{"message":"SUCCESS","result":[{},{},{}]}`)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	})

	inserted, err := c.AddRows(context.Background(), 42, []RowInsert{
		{ToBottom: true}, {ToBottom: true},
	})
	if err != nil {
		t.Fatalf("AddRows: %v", err)
	}
	if inserted != 1 {
		t.Fatalf("inserted = %d, want the response's result length 1", inserted)
	}

	updated, err := c.UpdateRows(context.Background(), 42, []RowUpdate{{ID: 7}})
	if err != nil {
		t.Fatalf("UpdateRows: %v", err)
	}
	if updated != 3 {
		t.Fatalf("updated = %d, want the response's result length 3", updated)
	}
}

func TestWriteRows_ErrorStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"message":"invalid cell value"}`)
	})

	if _, err := c.AddRows(context.Background(), 42, []RowInsert{{ToBottom: true}}); err == nil {
		t.Fatal("expected error for 400 response")
	}
}
