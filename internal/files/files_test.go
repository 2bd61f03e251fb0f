package files

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

func newTestDir(t *testing.T) *Dir {
	t.Helper()
	d, err := New(filepath.Join(t.TempDir(), "sheets"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

// age backdates a stored file so the sweeper sees it as old.
func age(t *testing.T, d *Dir, name string, by time.Duration) {
	t.Helper()
	past := time.Now().Add(-by)
	if err := os.Chtimes(filepath.Join(d.Root(), name), past, past); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
}

func TestSaveAndOpen(t *testing.T) {
	d := newTestDir(t)

	name, err := d.Save(strings.NewReader("a,b\n1,2\n"), "Q3 Report.csv")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	f, err := d.Open(name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	content := make([]byte, 64)
	n, _ := f.Read(content)
	if got := string(content[:n]); got != "a,b\n1,2\n" {
		t.Errorf("expected stored content round-trip, got %q", got)
	}
}

func TestStoredNameShape(t *testing.T) {
	d := newTestDir(t)

	tests := []struct {
		name     string
		original string
		pattern  string
	}{
		{
			name:     "spaces and case folded",
			original: "Q3 Report.CSV",
			pattern:  `^q3-report--\d+\.csv$`,
		},
		{
			name:     "punctuation folded to single hyphens",
			original: "sales (final)__v2.xlsx",
			pattern:  `^sales-final-v2--\d+\.xlsx$`,
		},
		{
			name:     "path component stripped",
			original: "exports/march/data.tsv",
			pattern:  `^data--\d+\.tsv$`,
		},
		{
			name:     "unusable stem falls back",
			original: "***.csv",
			pattern:  `^upload--\d+\.csv$`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stored, err := d.Save(strings.NewReader("x"), tt.original)
			if err != nil {
				t.Fatalf("Save: %v", err)
			}
			if !regexp.MustCompile(tt.pattern).MatchString(stored) {
				t.Errorf("stored name %q does not match %q", stored, tt.pattern)
			}
		})
	}
}

func TestStat(t *testing.T) {
	d := newTestDir(t)

	name, err := d.Save(strings.NewReader("hello"), "note.csv")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := d.Stat(name)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Filename != name {
		t.Errorf("expected filename %q, got %q", name, info.Filename)
	}
	if info.Size != 5 {
		t.Errorf("expected size 5, got %d", info.Size)
	}
	if info.Age < 0 {
		t.Errorf("expected non-negative age, got %d", info.Age)
	}
}

func TestStatMissing(t *testing.T) {
	d := newTestDir(t)

	_, err := d.Stat("gone--123456.csv")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestBadNamesRejected(t *testing.T) {
	d := newTestDir(t)

	tests := []struct {
		name string
		arg  string
	}{
		{name: "empty", arg: ""},
		{name: "path separator", arg: "a/b.csv"},
		{name: "parent traversal", arg: "../escape.csv"},
		{name: "dotfile", arg: ".env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.Open(tt.arg); !errors.Is(err, ErrBadName) {
				t.Errorf("Open(%q): expected ErrBadName, got %v", tt.arg, err)
			}
			if _, err := d.Stat(tt.arg); !errors.Is(err, ErrBadName) {
				t.Errorf("Stat(%q): expected ErrBadName, got %v", tt.arg, err)
			}
		})
	}
}

func TestSweep(t *testing.T) {
	d := newTestDir(t)

	old, err := d.Save(strings.NewReader("old"), "old.csv")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	fresh, err := d.Save(strings.NewReader("fresh"), "fresh.csv")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	age(t, d, old, 2*time.Hour)

	removed, err := d.Sweep(time.Hour)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 file removed, got %d", removed)
	}
	if _, err := d.Stat(old); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected old file swept, got %v", err)
	}
	if _, err := d.Stat(fresh); err != nil {
		t.Errorf("expected fresh file retained, got %v", err)
	}
}

func TestSweepSkipsInUse(t *testing.T) {
	d := newTestDir(t)

	name, err := d.Save(strings.NewReader("busy"), "busy.csv")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	age(t, d, name, 2*time.Hour)

	d.MarkInUse(name)
	if removed, _ := d.Sweep(time.Hour); removed != 0 {
		t.Errorf("expected in-use file kept, removed %d", removed)
	}
	if _, err := d.Stat(name); err != nil {
		t.Fatalf("expected in-use file to survive sweep: %v", err)
	}

	d.Release(name)
	if removed, _ := d.Sweep(time.Hour); removed != 1 {
		t.Errorf("expected released file swept, removed %d", removed)
	}
}

func TestMarkInUseNests(t *testing.T) {
	d := newTestDir(t)
	name := "stacked--1.csv"

	d.MarkInUse(name)
	d.MarkInUse(name)
	d.Release(name)
	if !d.InUse(name) {
		t.Error("expected file still in use after releasing one of two holds")
	}
	d.Release(name)
	if d.InUse(name) {
		t.Error("expected file free after final release")
	}
}

func TestStartSweeperRunsImmediately(t *testing.T) {
	d := newTestDir(t)

	name, err := d.Save(strings.NewReader("old"), "old.csv")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	age(t, d, name, 2*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.StartSweeper(ctx, time.Hour, time.Minute)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := d.Stat(name); errors.Is(err, fs.ErrNotExist) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected startup sweep to remove the expired file")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected sweeper to stop on context cancellation")
	}
}
