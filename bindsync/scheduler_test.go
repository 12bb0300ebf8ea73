package bindsync

import (
	"testing"
	"time"
)

func TestIsDue_Boundaries(t *testing.T) {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	exactly := now.Add(-30 * time.Minute)
	almost := now.Add(-(29*time.Minute + 59*time.Second))
	long := now.Add(-31 * time.Minute)

	cases := []struct {
		name     string
		last     *time.Time
		interval int
		expected bool
	}{
		{"exactly interval elapsed is due", &exactly, 30, true},
		{"29m59s elapsed is waiting", &almost, 30, false},
		{"over interval is due", &long, 30, true},
		{"never executed is always due", nil, 30, true},
		{"never executed even with huge interval", nil, 100000, true},
	}
	for _, tc := range cases {
		if got := IsDue(now, tc.last, tc.interval); got != tc.expected {
			t.Fatalf("%s: IsDue() = %v, expected %v", tc.name, got, tc.expected)
		}
	}
}

func TestParseSheetTime(t *testing.T) {
	cases := []struct {
		in       string
		expected string // RFC3339 UTC, "" meaning nil
	}{
		{"2025-07-01T10:00:00Z", "2025-07-01T10:00:00Z"},
		{"2025-07-01T10:00:00-06:00", "2025-07-01T16:00:00Z"},
		{"2025-07-01T10:00:00", "2025-07-01T10:00:00Z"},
		{"2025-07-01 10:00:00", "2025-07-01T10:00:00Z"},
		{"", ""},
		{"yesterday", ""},
	}
	for _, tc := range cases {
		got := ParseSheetTime(tc.in)
		if tc.expected == "" {
			if got != nil {
				t.Fatalf("ParseSheetTime(%q) = %v, expected nil", tc.in, got)
			}
			continue
		}
		if got == nil {
			t.Fatalf("ParseSheetTime(%q) = nil, expected %s", tc.in, tc.expected)
		}
		if got.Format(time.RFC3339) != tc.expected {
			t.Fatalf("ParseSheetTime(%q) = %s, expected %s", tc.in, got.Format(time.RFC3339), tc.expected)
		}
	}
}

func TestFormatSheetTime_UTCWithZ(t *testing.T) {
	loc := time.FixedZone("CST", -6*3600)
	in := time.Date(2025, 7, 1, 10, 30, 45, 123456789, loc)
	if got := FormatSheetTime(in); got != "2025-07-01T16:30:45Z" {
		t.Fatalf("FormatSheetTime() = %q", got)
	}
}
