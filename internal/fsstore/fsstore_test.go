// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fsstore

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"

	"github.com/patchlore/patch-hub/internal/errs"
)

func TestLiveWriteReadRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewLive(ctx)
	path := filepath.Join(t.TempDir(), "nested", "dir", "file.toml")

	if err := h.Write(context.Background(), path, []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := h.Read(context.Background(), path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("got %q, want %q", data, "hello")
	}
}

func TestLiveReadMissingFileIsNotFound(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewLive(ctx)
	_, err := h.Read(context.Background(), filepath.Join(t.TempDir(), "missing.toml"))
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLiveListMissingDirIsEmpty(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewLive(ctx)
	entries, err := h.List(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %v", entries)
	}
}

func TestStubRoundTripAndList(t *testing.T) {
	h := NewStub(nil)

	if err := h.Write(context.Background(), "cache/feed/a.toml", []byte("a")); err != nil {
		t.Fatalf("Write a: %v", err)
	}
	if err := h.Write(context.Background(), "cache/feed/b.toml", []byte("b")); err != nil {
		t.Fatalf("Write b: %v", err)
	}

	data, err := h.Read(context.Background(), "cache/feed/a.toml")
	if err != nil || string(data) != "a" {
		t.Fatalf("Read a: %q, %v", data, err)
	}

	entries, err := h.List(context.Background(), "cache/feed")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	sort.Strings(entries)
	if len(entries) != 2 || entries[0] != "a.toml" || entries[1] != "b.toml" {
		t.Fatalf("unexpected entries: %v", entries)
	}

	if _, err := h.Read(context.Background(), "cache/feed/missing.toml"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
