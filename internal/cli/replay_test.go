package cli

import (
	"strings"
	"testing"
	"time"
)

func TestParseTimeFlag(t *testing.T) {
	got, err := parseTimeFlag("from", "")
	if err != nil || !got.IsZero() {
		t.Fatalf("empty value: got %v, %v", got, err)
	}

	got, err = parseTimeFlag("from", "2026-03-01T10:00:00Z")
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}

	_, err = parseTimeFlag("to", "yesterday")
	if err == nil || !strings.Contains(err.Error(), "--to") {
		t.Errorf("expected --to error, got %v", err)
	}
}
