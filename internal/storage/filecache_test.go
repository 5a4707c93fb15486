// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestCache(t *testing.T) *FileCache {
	t.Helper()
	fc, err := OpenFileCache(filepath.Join(t.TempDir(), "cache", "files.db"))
	if err != nil {
		t.Fatalf("OpenFileCache: %v", err)
	}
	t.Cleanup(func() { fc.Close() })
	return fc
}

func TestFileCache_PutGet(t *testing.T) {
	fc := openTestCache(t)
	ctx := context.Background()

	png := []byte{0x89, 'P', 'N', 'G', 0, 1, 2, 3}
	err := fc.Put(ctx, CachedFile{
		FileID:      "cfile_1",
		ContainerID: "cntr_1",
		Filename:    "plot.png",
		MimeType:    "image/png",
		Data:        png,
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := fc.Get(ctx, "cfile_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got.Data, png) {
		t.Errorf("data = %v", got.Data)
	}
	if got.MimeType != "image/png" || got.Filename != "plot.png" || got.ContainerID != "cntr_1" {
		t.Errorf("metadata = %+v", got)
	}
	if got.FetchedAt.IsZero() {
		t.Error("fetched_at must be stamped")
	}
}

func TestFileCache_Miss(t *testing.T) {
	fc := openTestCache(t)
	if _, err := fc.Get(context.Background(), "cfile_absent"); !errors.Is(err, ErrFileNotCached) {
		t.Fatalf("err = %v, want ErrFileNotCached", err)
	}
}

func TestFileCache_Replace(t *testing.T) {
	fc := openTestCache(t)
	ctx := context.Background()

	for _, data := range [][]byte{[]byte("v1"), []byte("v2")} {
		if err := fc.Put(ctx, CachedFile{FileID: "cfile_1", Data: data}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	got, err := fc.Get(ctx, "cfile_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got.Data) != "v2" {
		t.Errorf("data = %q, want replacement", got.Data)
	}
	n, err := fc.Len(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("len = %d", n)
	}
}

func TestFileCache_TTLExpiry(t *testing.T) {
	fc := openTestCache(t).WithTTL(time.Minute)
	ctx := context.Background()

	err := fc.Put(ctx, CachedFile{
		FileID:    "cfile_old",
		Data:      []byte("stale"),
		FetchedAt: time.Now().Add(-2 * time.Minute),
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	if _, err := fc.Get(ctx, "cfile_old"); !errors.Is(err, ErrFileNotCached) {
		t.Fatalf("expired entry: err = %v, want ErrFileNotCached", err)
	}
	// Expired rows are deleted on read.
	n, err := fc.Len(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("len = %d after expiry", n)
	}
}

func TestFileCache_Prune(t *testing.T) {
	fc := openTestCache(t).WithTTL(time.Minute)
	ctx := context.Background()

	fresh := CachedFile{FileID: "cfile_fresh", Data: []byte("fresh")}
	stale := CachedFile{FileID: "cfile_stale", Data: []byte("stale"), FetchedAt: time.Now().Add(-time.Hour)}
	for _, f := range []CachedFile{fresh, stale} {
		if err := fc.Put(ctx, f); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := fc.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d", removed)
	}
	if _, err := fc.Get(ctx, "cfile_fresh"); err != nil {
		t.Errorf("fresh entry lost: %v", err)
	}
}
