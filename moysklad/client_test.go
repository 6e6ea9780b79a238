package moysklad

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(baseURL string, maxRetries int) *msClient {
	return &msClient{
		baseURL:    baseURL,
		authHeader: "Bearer test-token",
		http:       &http.Client{Timeout: 5 * time.Second},
		limiter:    time.Tick(time.Millisecond),
		maxRetries: maxRetries,
	}
}

func listBody(totalSize int, rows []map[string]interface{}) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"meta": map[string]interface{}{"size": totalSize},
		"rows": rows,
	})
	return body
}

func TestFetchAllWalksEveryPage(t *testing.T) {
	const total = 6
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		var rows []map[string]interface{}
		for i := offset; i < offset+2 && i < total; i++ {
			rows = append(rows, map[string]interface{}{"id": fmt.Sprintf("rec-%d", i)})
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(listBody(total, rows))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 0)
	var seen []string
	got, err := client.fetchAll(context.Background(), "/entity/product", nil, func(rows []json.RawMessage) error {
		for _, raw := range rows {
			var rec struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err
			}
			seen = append(seen, rec.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("fetchAll: %v", err)
	}
	if got != total {
		t.Errorf("total = %d, want %d", got, total)
	}
	if len(seen) != total {
		t.Errorf("rows seen = %d, want %d", len(seen), total)
	}
	if seen[0] != "rec-0" || seen[total-1] != fmt.Sprintf("rec-%d", total-1) {
		t.Errorf("unexpected row order: %v", seen)
	}
}

func TestGetListAuthErrorIsFatal(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"errors":[{"error":"auth"}]}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 3)
	_, err := client.getList(context.Background(), "/entity/product", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsAuthError(err) {
		t.Fatalf("expected AuthError, got %T: %v", err, err)
	}
	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Errorf("requests = %d, want 1 (auth failures must not retry)", n)
	}
}

func TestGetListRetriesServerErrors(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write(listBody(1, []map[string]interface{}{{"id": "rec-0"}}))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 2)
	resp, err := client.getList(context.Background(), "/entity/product", nil)
	if err != nil {
		t.Fatalf("getList: %v", err)
	}
	if len(resp.Rows) != 1 {
		t.Errorf("rows = %d, want 1", len(resp.Rows))
	}
	if n := atomic.LoadInt32(&requests); n != 2 {
		t.Errorf("requests = %d, want 2", n)
	}
}

func TestGetListRetriesAfterRateLimit(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write(listBody(0, nil))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 2)
	start := time.Now()
	_, err := client.getList(context.Background(), "/entity/product", nil)
	if err != nil {
		t.Fatalf("getList: %v", err)
	}
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("retried after %s, want at least the Retry-After interval", elapsed)
	}
	if n := atomic.LoadInt32(&requests); n != 2 {
		t.Errorf("requests = %d, want 2", n)
	}
}

func TestGetListGivesUpAfterMaxRetries(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 1)
	_, err := client.getList(context.Background(), "/entity/product", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsSourceUnavailable(err) {
		t.Errorf("err = %v, want a source-unavailable error", err)
	}
	var se *SourceUnavailableError
	if errors.As(err, &se) && se.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", se.Attempts)
	}
	if n := atomic.LoadInt32(&requests); n != 2 {
		t.Errorf("requests = %d, want 2 (initial + 1 retry)", n)
	}
}

func TestTestConnectionReportsOrganizationCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/entity/organization" {
			t.Errorf("path = %q, want /entity/organization", r.URL.Path)
		}
		w.Write(listBody(3, []map[string]interface{}{{"id": "org-0"}}))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 0)
	count, err := client.testConnection(context.Background())
	if err != nil {
		t.Fatalf("testConnection: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestGetListHonorsContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(srv.URL, 5)
	_, err := client.getList(ctx, "/entity/product", url.Values{})
	if err == nil {
		t.Fatal("expected context error")
	}
}
