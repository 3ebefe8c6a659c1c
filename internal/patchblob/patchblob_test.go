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

package patchblob

import (
	"context"
	"testing"

	"github.com/patchlore/patch-hub/internal/errs"
	"github.com/patchlore/patch-hub/internal/fsstore"
	"github.com/patchlore/patch-hub/internal/loreapi"
)

func newTestHandle(ctx context.Context, blobs map[string][]byte, capacity int) (Handle, fsstore.Handle) {
	stubBlobs := map[string]map[string][]byte{"linux-kernel": blobs}
	adapter := loreapi.NewStub(loreapi.StubData{Blobs: rawBlobKeys(stubBlobs)})
	fs := fsstore.NewStub(nil)
	h := NewLive(ctx, adapter, fs, "cache/patch", capacity)
	return h, fs
}

// rawBlobKeys adapts a list->messageID->body map into loreapi's flat
// "op:list:messageID" blob key space, used only by GetPatchRaw.
func rawBlobKeys(byList map[string]map[string][]byte) map[string][]byte {
	flat := make(map[string][]byte)
	for list, byID := range byList {
		for id, body := range byID {
			flat["raw:"+list+":"+id] = body
		}
	}
	return flat
}

func TestGetFetchesThroughAdapterOnFullMiss(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, fs := newTestHandle(ctx, map[string][]byte{"m1": []byte("From foo\nmbox body\n")}, DefaultCapacity)

	blob, err := h.Get(context.Background(), "linux-kernel", "m1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(blob.Body) != "From foo\nmbox body\n" {
		t.Fatalf("unexpected body: %q", blob.Body)
	}

	data, err := fs.Read(context.Background(), "cache/patch/linux-kernel/m1.mbox")
	if err != nil {
		t.Fatalf("expected write-through to disk, got error: %v", err)
	}
	if string(data) != "From foo\nmbox body\n" {
		t.Fatalf("unexpected disk contents: %q", data)
	}
}

func TestGetServesFromDiskWithoutRefetching(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	adapter := loreapi.NewStub(loreapi.StubData{})
	fs := fsstore.NewStub(map[string][]byte{
		"cache/patch/linux-kernel/m1.mbox": []byte("cached body"),
	})
	h := NewLive(ctx, adapter, fs, "cache/patch", DefaultCapacity)

	blob, err := h.Get(context.Background(), "linux-kernel", "m1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(blob.Body) != "cached body" {
		t.Fatalf("expected disk-served body, got %q", blob.Body)
	}
}

func TestGetPropagatesAdapterNotFound(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	adapter := loreapi.NewStub(loreapi.StubData{
		Errs: map[string]error{"raw:linux-kernel:missing": errs.ErrNotFound},
	})
	fs := fsstore.NewStub(nil)
	h := NewLive(ctx, adapter, fs, "cache/patch", DefaultCapacity)

	_, err := h.Get(context.Background(), "linux-kernel", "missing")
	if err == nil {
		t.Fatal("expected error for missing patch, got nil")
	}
}

func TestIsAvailableReflectsBufferOnly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, _ := newTestHandle(ctx, map[string][]byte{"m1": []byte("body")}, DefaultCapacity)

	available, err := h.IsAvailable(context.Background(), "linux-kernel", "m1")
	if err != nil {
		t.Fatalf("IsAvailable: %v", err)
	}
	if available {
		t.Fatal("expected unavailable before any Get")
	}

	if _, err := h.Get(context.Background(), "linux-kernel", "m1"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	available, err = h.IsAvailable(context.Background(), "linux-kernel", "m1")
	if err != nil {
		t.Fatalf("IsAvailable: %v", err)
	}
	if !available {
		t.Fatal("expected available after Get populates the buffer")
	}
}

func TestInvalidateRemovesFromBufferAndDisk(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, fs := newTestHandle(ctx, map[string][]byte{"m1": []byte("body")}, DefaultCapacity)

	if _, err := h.Get(context.Background(), "linux-kernel", "m1"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := h.Invalidate(context.Background(), "linux-kernel", "m1"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	available, err := h.IsAvailable(context.Background(), "linux-kernel", "m1")
	if err != nil {
		t.Fatalf("IsAvailable: %v", err)
	}
	if available {
		t.Fatal("expected unavailable after invalidate")
	}

	if _, err := fs.Read(context.Background(), "cache/patch/linux-kernel/m1.mbox"); err != errs.ErrNotFound {
		t.Fatalf("expected disk file removed, got err=%v", err)
	}
}

func TestInvalidateMissingEntryIsNotAnError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, _ := newTestHandle(ctx, nil, DefaultCapacity)

	if err := h.Invalidate(context.Background(), "linux-kernel", "never-fetched"); err != nil {
		t.Fatalf("Invalidate of missing entry should be a no-op, got: %v", err)
	}
}

// TestBufferEvictsLeastRecentlyUsed exercises spec invariant 5: the
// in-memory buffer holds at most capacity entries, evicting the least
// recently used on overflow. Capacity 1 makes every new Get evict the
// previous entry.
func TestBufferEvictsLeastRecentlyUsed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, _ := newTestHandle(ctx, map[string][]byte{
		"m1": []byte("body-1"),
		"m2": []byte("body-2"),
	}, 1)

	if _, err := h.Get(context.Background(), "linux-kernel", "m1"); err != nil {
		t.Fatalf("Get m1: %v", err)
	}
	if _, err := h.Get(context.Background(), "linux-kernel", "m2"); err != nil {
		t.Fatalf("Get m2: %v", err)
	}

	available, err := h.IsAvailable(context.Background(), "linux-kernel", "m1")
	if err != nil {
		t.Fatalf("IsAvailable m1: %v", err)
	}
	if available {
		t.Fatal("expected m1 evicted once capacity-1 buffer holds m2")
	}

	available, err = h.IsAvailable(context.Background(), "linux-kernel", "m2")
	if err != nil {
		t.Fatalf("IsAvailable m2: %v", err)
	}
	if !available {
		t.Fatal("expected m2 present in the capacity-1 buffer")
	}
}
