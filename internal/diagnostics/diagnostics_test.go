package diagnostics

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
)

func TestCollector_Collect_ArchivesFilesUnderRoots(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "station.log"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("writing fixture file: %v", err)
	}
	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("creating subdirectory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sub, "events.log"), []byte("world"), 0o644); err != nil {
		t.Fatalf("writing fixture file: %v", err)
	}

	c := NewCollector([]string{root}, nil)

	var buf bytes.Buffer
	if err := c.Collect(context.Background(), &buf, nil, nil); err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}

	gz, err := gzip.NewReader(&buf)
	if err != nil {
		t.Fatalf("opening gzip stream: %v", err)
	}
	tr := tar.NewReader(gz)

	names := map[string]bool{}
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		names[hdr.Name] = true
	}

	if !names[filepath.Join(root, "station.log")] {
		t.Errorf("expected archive to contain station.log, got %v", names)
	}
	if !names[filepath.Join(sub, "events.log")] {
		t.Errorf("expected archive to contain sub/events.log, got %v", names)
	}
}

func TestCollector_Collect_SkipsNonLogFiles(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "station.log"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("writing fixture file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatalf("writing fixture file: %v", err)
	}

	c := NewCollector([]string{root}, nil)
	var buf bytes.Buffer
	if err := c.Collect(context.Background(), &buf, nil, nil); err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}

	gz, err := gzip.NewReader(&buf)
	if err != nil {
		t.Fatalf("opening gzip stream: %v", err)
	}
	tr := tar.NewReader(gz)

	names := map[string]bool{}
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		names[hdr.Name] = true
	}

	if !names[filepath.Join(root, "station.log")] {
		t.Errorf("expected archive to contain station.log, got %v", names)
	}
	if names[filepath.Join(root, "notes.txt")] {
		t.Error("expected notes.txt to be excluded from the archive")
	}
}

func TestCollector_Collect_SkipsFilesOutsideTimeWindow(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "station.log"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("writing fixture file: %v", err)
	}

	info, err := os.Stat(filepath.Join(root, "station.log"))
	if err != nil {
		t.Fatalf("stat fixture file: %v", err)
	}
	start := info.ModTime().Add(time.Hour)

	c := NewCollector([]string{root}, nil)
	var buf bytes.Buffer
	if err := c.Collect(context.Background(), &buf, &start, nil); err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}

	gz, err := gzip.NewReader(&buf)
	if err != nil {
		t.Fatalf("opening gzip stream: %v", err)
	}
	tr := tar.NewReader(gz)
	if _, err := tr.Next(); err == nil {
		t.Error("expected no entries when start is after the file's mtime")
	}
}
