package moysklad

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func rawRows(n int) []json.RawMessage {
	rows := make([]json.RawMessage, n)
	for i := range rows {
		rows[i] = json.RawMessage(`{}`)
	}
	return rows
}

func TestProcessRowsCapEscalatesToPipelineError(t *testing.T) {
	run := &syncRun{maxFails: 3}
	res := &entityResult{}
	consecutive := 0

	err := run.processRows(res, &consecutive, rawRows(10), func(json.RawMessage) error {
		return mapErr("product", "p-1", "missing name")
	})

	var pe *pipelineError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want pipeline error after cap", err)
	}
	if res.Failed != 3 {
		t.Errorf("failed = %d, want 3 (stop at the cap)", res.Failed)
	}
	if res.Processed != 0 {
		t.Errorf("processed = %d, want 0", res.Processed)
	}
}

func TestProcessRowsSuccessResetsConsecutiveCount(t *testing.T) {
	run := &syncRun{maxFails: 2}
	res := &entityResult{}
	consecutive := 0
	i := 0

	// Alternating failures never reach two in a row.
	err := run.processRows(res, &consecutive, rawRows(8), func(json.RawMessage) error {
		i++
		if i%2 == 1 {
			return mapErr("product", "p-bad", "missing name")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if res.Processed != 4 || res.Failed != 4 {
		t.Errorf("counters = %d/%d, want 4 processed, 4 failed", res.Processed, res.Failed)
	}
}

func TestProcessRowsCapSpansPages(t *testing.T) {
	run := &syncRun{maxFails: 4}
	res := &entityResult{}
	consecutive := 0
	fail := func(json.RawMessage) error { return mapErr("product", "p-bad", "missing name") }

	if err := run.processRows(res, &consecutive, rawRows(3), fail); err != nil {
		t.Fatalf("first page err = %v, want nil (cap not reached yet)", err)
	}
	err := run.processRows(res, &consecutive, rawRows(3), fail)
	var pe *pipelineError
	if !errors.As(err, &pe) {
		t.Fatalf("second page err = %v, want pipeline error", err)
	}
	if res.Failed != 4 {
		t.Errorf("failed = %d, want 4", res.Failed)
	}
}

func TestProcessRowsAuthErrorReturnsImmediately(t *testing.T) {
	run := &syncRun{maxFails: 25}
	res := &entityResult{}
	consecutive := 0

	err := run.processRows(res, &consecutive, rawRows(5), func(json.RawMessage) error {
		return &AuthError{StatusCode: 401, Body: "Unauthorized"}
	})
	if !IsAuthError(err) {
		t.Fatalf("err = %v, want auth error passed through", err)
	}
	if res.Failed != 0 {
		t.Errorf("failed = %d, want 0 (auth stops before counting)", res.Failed)
	}
}

func TestPipelineFaultClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"auth rejection", &AuthError{StatusCode: 401, Body: "Unauthorized"}, true},
		{"exhausted retries", &SourceUnavailableError{Attempts: 4, Err: errors.New("moysklad api error 503: down")}, true},
		{"wrapped exhausted retries", fmt.Errorf("products: %w", &SourceUnavailableError{Attempts: 2, Err: errors.New("timeout")}), true},
		{"failure cap", &pipelineError{err: errors.New("aborting after 25 consecutive record failures")}, true},
		{"record mapping failure", mapErr("product", "p-1", "missing name"), false},
		{"plain entity error", errors.New("unexpected payload"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isPipelineFault(tt.err); got != tt.want {
				t.Errorf("isPipelineFault(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestEntityParamsNarrowsIncrementalRuns(t *testing.T) {
	run := &syncRun{}
	if got := run.entityParams(); got != nil {
		t.Errorf("full run params = %v, want nil", got)
	}

	since := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	run.updatedSince = since.Format(msMomentLayout)
	got := run.entityParams()
	if got.Get("filter") != "updated>=2024-03-15 10:30:00" {
		t.Errorf("filter = %q, want updated>=2024-03-15 10:30:00", got.Get("filter"))
	}
	if run.documentParams().Get("expand") != "state" {
		t.Errorf("document params should expand state")
	}
}
