package tle

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

func TestParseMixedCatalog(t *testing.T) {
	input := strings.Join([]string{
		"0 VANGUARD 1",
		vanguardLine1,
		vanguardLine2,
		validSets[1].line1, // unnamed two-line entry
		validSets[1].line2,
		"BROKEN",
		vanguardLine1[:68] + "0",
		vanguardLine2,
		"ORPHAN",
		"NOAA 18",
		validSets[2].line1,
		validSets[2].line2,
	}, "\r\n")

	entries, err := Parse(strings.NewReader(input), testLogger)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := []struct {
		name  string
		norad int
	}{
		{"VANGUARD 1", 5},
		{"", 25544},
		{"NOAA 18", 28654},
	}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d: %+v", len(entries), len(want), entries)
	}
	for i, w := range want {
		if entries[i].Name != w.name || entries[i].NORADID() != w.norad {
			t.Errorf("entry %d = (%q, %d), want (%q, %d)",
				i, entries[i].Name, entries[i].NORADID(), w.name, w.norad)
		}
	}
}

func TestCatalogLookupPrefersLatestEpoch(t *testing.T) {
	older, err := ParseElements(validSets[4].line1, validSets[4].line2)
	if err != nil {
		t.Fatal(err)
	}
	newer := older
	newer.Epoch = older.Epoch.Add(time.Hour)

	c := NewCatalog("test", time.Now(), []Entry{
		{Name: "NEW", Elements: newer},
		{Name: "OLD", Elements: older},
	})

	got, ok := c.Lookup(44713)
	if !ok {
		t.Fatal("Lookup: not found")
	}
	if got.Name != "NEW" {
		t.Errorf("Lookup returned %q, want NEW", got.Name)
	}
	if !c.EpochRange.Min.Equal(older.Epoch) || !c.EpochRange.Max.Equal(newer.Epoch) {
		t.Errorf("EpochRange = %+v", c.EpochRange)
	}
	if _, ok := c.Lookup(1); ok {
		t.Error("Lookup(1) found an entry")
	}
}

func TestStore(t *testing.T) {
	s := NewStore()
	if s.Get() != nil {
		t.Fatal("new store has a catalog")
	}
	if s.AgeSeconds() != -1 {
		t.Errorf("AgeSeconds = %v, want -1", s.AgeSeconds())
	}
	if _, ok := s.Lookup(5); ok {
		t.Error("Lookup on empty store succeeded")
	}

	el, err := ParseElements(vanguardLine1, vanguardLine2)
	if err != nil {
		t.Fatal(err)
	}
	s.Set(NewCatalog("test", time.Now(), []Entry{{Name: "VANGUARD 1", Elements: el}}))

	if e, ok := s.Lookup(5); !ok || e.Name != "VANGUARD 1" {
		t.Errorf("Lookup(5) = %+v, %v", e, ok)
	}
	if age := s.AgeSeconds(); age < 0 || age > 60 {
		t.Errorf("AgeSeconds = %v", age)
	}
}

func TestSourceLoadsNewestFileInDir(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "a.tle")
	newPath := filepath.Join(dir, "b.txt")

	write := func(path, body string, mod time.Time) {
		t.Helper()
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(path, mod, mod); err != nil {
			t.Fatal(err)
		}
	}
	now := time.Now()
	write(oldPath, vanguardLine1+"\n"+vanguardLine2+"\n", now.Add(-time.Hour))
	write(newPath, "ISS\n"+validSets[1].line1+"\n"+validSets[1].line2+"\n", now)
	write(filepath.Join(dir, "notes.md"), "ignored", now.Add(time.Hour))

	c, err := NewSource(dir).Load(testLogger)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Source != newPath {
		t.Errorf("Source = %q, want %q", c.Source, newPath)
	}
	if _, ok := c.Lookup(25544); !ok {
		t.Error("newest catalog does not contain 25544")
	}
}

func TestSourceRejectsEmptyCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.tle")
	if err := os.WriteFile(path, []byte("garbage\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewSource(path).Load(testLogger); err == nil {
		t.Fatal("expected error for catalog with no valid entries")
	}
	if _, err := NewSource(filepath.Join(t.TempDir(), "missing")).Load(testLogger); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestStoreReloadKeepsCatalogOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "active.tle")
	if err := os.WriteFile(path, []byte(vanguardLine1+"\n"+vanguardLine2+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStore()
	src := NewSource(path)
	c, err := s.Reload(src, testLogger)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if s.Get() != c {
		t.Fatal("Reload did not install the catalog")
	}

	if err := os.WriteFile(path, []byte("garbage\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Reload(src, testLogger); err == nil {
		t.Fatal("expected reload error")
	}
	if s.Get() != c {
		t.Error("failed reload replaced the catalog")
	}
}
