package models

import "testing"

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name       string
		limit      string
		offset     string
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", "", DefaultPageSize, 0},
		{"explicit", "20", "40", 20, 40},
		{"clamped to max", "9999", "0", MaxPageSize, 0},
		{"garbage falls back", "abc", "-5", DefaultPageSize, 0},
		{"zero limit falls back", "0", "10", DefaultPageSize, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ParsePagination(tt.limit, tt.offset)
			if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
				t.Errorf("ParsePagination(%q, %q) = {%d %d}, want {%d %d}",
					tt.limit, tt.offset, p.Limit, p.Offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestJobStatusHelpers(t *testing.T) {
	for _, s := range []string{SyncJobStatusCompleted, SyncJobStatusFailed} {
		if !IsTerminalJobStatus(s) {
			t.Errorf("IsTerminalJobStatus(%q) = false, want true", s)
		}
	}
	for _, s := range []string{SyncJobStatusPending, SyncJobStatusRunning, ""} {
		if IsTerminalJobStatus(s) {
			t.Errorf("IsTerminalJobStatus(%q) = true, want false", s)
		}
	}

	for _, jt := range []string{SyncJobTypeFull, SyncJobTypeIncremental, SyncJobTypeEnhanced} {
		if !IsValidJobType(jt) {
			t.Errorf("IsValidJobType(%q) = false, want true", jt)
		}
	}
	if IsValidJobType("nightly") {
		t.Error(`IsValidJobType("nightly") = true, want false`)
	}
}
