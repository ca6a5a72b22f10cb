package fetch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/quasar/pmc/internal/events"
	"github.com/quasar/pmc/internal/pmcerr"
)

func TestBatch_SingleFile(t *testing.T) {
	content := []byte("Hello, World!")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer server.Close()

	tmpDir := t.TempDir()
	dest := filepath.Join(tmpDir, "test.txt")

	eng := New(1)
	err := eng.Batch(context.Background(), []Entry{{URL: server.URL, Dest: dest}}, events.NewDispatcher(nil))
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if string(data) != string(content) {
		t.Errorf("content mismatch: got %q, want %q", data, content)
	}
}

func TestBatch_SHA1Validation(t *testing.T) {
	content := []byte("Test content for hashing")
	sum := sha1.Sum(content)
	expected := hex.EncodeToString(sum[:])

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer server.Close()

	tmpDir := t.TempDir()
	dest := filepath.Join(tmpDir, "hashed.txt")

	eng := New(1)
	err := eng.Batch(context.Background(), []Entry{{URL: server.URL, Dest: dest, SHA1: expected, Size: int64(len(content))}}, events.NewDispatcher(nil))
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}
}

func TestBatch_SHA1Mismatch(t *testing.T) {
	content := []byte("Test content")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer server.Close()

	tmpDir := t.TempDir()
	dest := filepath.Join(tmpDir, "bad_hash.txt")

	eng := New(1)
	err := eng.Batch(context.Background(), []Entry{{URL: server.URL, Dest: dest, SHA1: "0000000000000000000000000000000000000000"}}, events.NewDispatcher(nil))
	if !pmcerr.Is(err, pmcerr.KindDownload) {
		t.Fatalf("expected download failure kind, got %v", err)
	}
}

func TestBatch_SkipsExistingValid(t *testing.T) {
	content := []byte("Existing content")
	sum := sha1.Sum(content)
	expected := hex.EncodeToString(sum[:])

	serverCalled := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serverCalled = true
		w.Write(content)
	}))
	defer server.Close()

	tmpDir := t.TempDir()
	dest := filepath.Join(tmpDir, "existing.txt")
	if err := os.WriteFile(dest, content, 0644); err != nil {
		t.Fatal(err)
	}

	eng := New(1)
	err := eng.Batch(context.Background(), []Entry{{URL: server.URL, Dest: dest, SHA1: expected, Size: int64(len(content))}}, events.NewDispatcher(nil))
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}
	if serverCalled {
		t.Error("server should not be called for an existing valid file")
	}
}

func TestBatch_MultipleEntries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("content-" + r.URL.Path))
	}))
	defer server.Close()

	tmpDir := t.TempDir()
	entries := []Entry{
		{URL: server.URL + "/1", Dest: filepath.Join(tmpDir, "1.txt")},
		{URL: server.URL + "/2", Dest: filepath.Join(tmpDir, "2.txt")},
		{URL: server.URL + "/3", Dest: filepath.Join(tmpDir, "3.txt")},
	}

	eng := New(2)
	err := eng.Batch(context.Background(), entries, events.NewDispatcher(nil))
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}
	for _, entry := range entries {
		if _, err := os.Stat(entry.Dest); err != nil {
			t.Errorf("file %s should exist: %v", entry.Dest, err)
		}
	}
}

func TestBatch_EmptyList(t *testing.T) {
	eng := New(4)
	if err := eng.Batch(context.Background(), nil, events.NewDispatcher(nil)); err != nil {
		t.Fatalf("empty batch should not fail: %v", err)
	}
}

func TestBatch_ExecutableChmod(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#!/bin/sh\necho jvm"))
	}))
	defer server.Close()

	tmpDir := t.TempDir()
	dest := filepath.Join(tmpDir, "java")

	eng := New(1)
	err := eng.Batch(context.Background(), []Entry{{URL: server.URL, Dest: dest, Executable: true}}, events.NewDispatcher(nil))
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&0111 == 0 {
		t.Errorf("expected executable bit set, got mode %v", info.Mode())
	}
}

func TestBatch_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("content"))
	}))
	defer server.Close()

	tmpDir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng := New(1)
	err := eng.Batch(ctx, []Entry{{URL: server.URL, Dest: filepath.Join(tmpDir, "x.txt")}}, events.NewDispatcher(nil))
	if !pmcerr.Is(err, pmcerr.KindDownloadCancelled) {
		t.Fatalf("expected download_resources_cancelled, got %v", err)
	}
}
