package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestProgressDisabledWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, false)

	p.Title("GET https://bbs.example.com/rest/api/1.0/projects")
	p.Clear()

	if buf.Len() != 0 {
		t.Errorf("disabled progress wrote %q", buf.String())
	}
}

func TestProgressTrack(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, true)

	want := errors.New("boom")
	err := p.Track("git clone", func() error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("Track() error = %v, want %v", err, want)
	}

	out := buf.String()
	if !strings.Contains(out, "git clone") {
		t.Errorf("output %q missing title", out)
	}
	if !strings.HasSuffix(out, "\r\033[K") {
		t.Errorf("output %q should end by clearing the line", out)
	}
}

func TestProgressTruncatesLongTitles(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, true)
	p.SetWidth(10)

	p.Title(strings.Repeat("x", 50))
	if strings.Count(buf.String(), "x") != 9 {
		t.Errorf("title not truncated: %q", buf.String())
	}
}

func TestProgressPrintln(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, false)

	p.Println("Exporting repository MIGR8/migrate-me...")
	if buf.String() != "Exporting repository MIGR8/migrate-me...\n" {
		t.Errorf("Println() wrote %q", buf.String())
	}
}

func TestProgressWriteClearsStatus(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, true)

	p.Title("GET /rest/api/1.0/projects/MIGR")
	if _, err := p.Write([]byte("Exporting tags...\n")); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	clearAt := strings.LastIndex(out, "\r\033[K")
	if clearAt < 0 || !strings.HasSuffix(out, "Exporting tags...\n") || clearAt > strings.Index(out, "Exporting tags") {
		t.Errorf("status line should be cleared before the message: %q", out)
	}
}
