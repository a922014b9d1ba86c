package timeparsing

import (
	"errors"
	"testing"
	"time"
)

func TestParseCompactDuration(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{name: "+6h adds 6 hours", input: "+6h", want: time.Date(2025, 6, 15, 18, 0, 0, 0, time.UTC)},
		{name: "-1d subtracts 1 day", input: "-1d", want: time.Date(2025, 6, 14, 12, 0, 0, 0, time.UTC)},
		{name: "-2w subtracts 2 weeks", input: "-2w", want: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		{name: "3m without sign", input: "3m", want: time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)},
		{name: "-1y", input: "-1y", want: time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)},
		{name: "unknown unit", input: "1x", wantErr: true},
		{name: "double sign", input: "++1d", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCompactDuration(tt.input, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCompactDuration(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ParseCompactDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseSince(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{name: "unsigned days count back", input: "30d", want: time.Date(2024, 12, 16, 10, 0, 0, 0, time.UTC)},
		{name: "negative hours", input: "-6h", want: time.Date(2025, 1, 15, 4, 0, 0, 0, time.UTC)},
		{name: "date only", input: "2024-11-01", want: time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)},
		{name: "rfc3339", input: "2024-11-01T08:30:00Z", want: time.Date(2024, 11, 1, 8, 30, 0, 0, time.UTC)},
		{name: "explicit future duration", input: "+1d", wantErr: true},
		{name: "future date", input: "2025-02-01", wantErr: true},
		{name: "garbage", input: "not a date at all", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSince(tt.input, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSince(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ParseSince(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseSinceFutureError(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	_, err := ParseSince("+2w", now)
	if !errors.Is(err, ErrFutureCutoff) {
		t.Errorf("ParseSince(+2w) error = %v, want ErrFutureCutoff", err)
	}
}

func TestParseNaturalLanguagePast(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	got, err := ParseNaturalLanguage("3 days ago", now)
	if err != nil {
		t.Fatalf("ParseNaturalLanguage: %v", err)
	}
	if got.Year() != 2025 || got.Month() != time.January || got.Day() != 12 {
		t.Errorf("3 days ago = %v, want Jan 12 2025", got)
	}

	if _, err := ParseNaturalLanguage("", now); err == nil {
		t.Error("empty input should fail")
	}
}
