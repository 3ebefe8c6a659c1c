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

// Package patchblob implements the PatchBlob cache: the raw, immutable
// mbox body of one patch, keyed by (list, message_id), served through a
// bounded in-memory LRU backed by an unbounded disk tier.
package patchblob

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/patchlore/patch-hub/internal/actor"
	"github.com/patchlore/patch-hub/internal/errs"
	"github.com/patchlore/patch-hub/internal/fsstore"
	"github.com/patchlore/patch-hub/internal/loreapi"
	"github.com/patchlore/patch-hub/internal/loremodel"
)

// DefaultCapacity is the in-memory buffer's default LRU capacity.
const DefaultCapacity = 50

// Handle is the dual (live/stub) contract for the PatchBlob cache.
type Handle interface {
	// Get returns the raw mbox blob for (list, messageID), fetching it
	// on miss through the lookup order memory -> disk -> adapter.
	Get(ctx context.Context, list, messageID string) (*loremodel.PatchBlob, error)
	// Invalidate removes (list, messageID) from both the buffer and
	// disk; a missing entry is not an error.
	Invalidate(ctx context.Context, list, messageID string) error
	// IsAvailable reports whether (list, messageID) is present in the
	// in-memory buffer without touching disk or the adapter.
	IsAvailable(ctx context.Context, list, messageID string) (bool, error)
}

type blobKey struct {
	list      string
	messageID string
}

func (k blobKey) diskPath(dir string) string {
	return filepath.Join(dir, k.list, k.messageID+".mbox")
}

type opKind int

const (
	opGet opKind = iota
	opInvalidate
	opIsAvailable
)

type request struct {
	op  opKind
	key blobKey
}

type response struct {
	body      []byte
	available bool
	err       error
}

// liveHandle serializes every buffer mutation through one actor
// goroutine, matching the single-writer discipline the rest of
// patch-hub's caches use; the LRU itself is not safe for concurrent use
// from multiple goroutines, so this also doubles as its lock.
type liveHandle struct {
	mb      actor.Mailbox[request, response]
	adapter loreapi.Handle
	fs      fsstore.Handle
	dir     string
}

// NewLive spawns the PatchBlob actor. dir is the per-list disk tier
// root (normally `<cache_root>/patch`); capacity is the LRU's bound
// (DefaultCapacity in production).
func NewLive(ctx context.Context, adapter loreapi.Handle, fs fsstore.Handle, dir string, capacity int) Handle {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	cache, err := lru.New[blobKey, []byte](capacity)
	if err != nil {
		// Only returned by golang-lru for capacity <= 0, already guarded
		// above; a panic here means the guard above was removed.
		panic(fmt.Sprintf("patchblob: lru.New: %v", err))
	}

	h := &liveHandle{
		mb:      actor.NewMailbox[request, response](64),
		adapter: adapter,
		fs:      fs,
		dir:     dir,
	}

	go actor.Loop(ctx, h.mb, func(req request) response {
		return dispatch(ctx, h, cache, req)
	})
	return h
}

func dispatch(ctx context.Context, h *liveHandle, cache *lru.Cache[blobKey, []byte], req request) response {
	switch req.op {
	case opGet:
		body, err := get(ctx, h, cache, req.key)
		return response{body: body, err: err}
	case opInvalidate:
		return response{err: invalidate(ctx, h, cache, req.key)}
	case opIsAvailable:
		_, ok := cache.Get(req.key)
		return response{available: ok}
	default:
		return response{err: fmt.Errorf("patchblob: unknown operation %d", req.op)}
	}
}

// get looks up the blob in memory, then disk, then finally the
// adapter, writing through to both tiers on a fetch.
func get(ctx context.Context, h *liveHandle, cache *lru.Cache[blobKey, []byte], key blobKey) ([]byte, error) {
	if body, ok := cache.Get(key); ok {
		return body, nil
	}

	path := key.diskPath(h.dir)
	if body, err := h.fs.Read(ctx, path); err == nil {
		cache.Add(key, body)
		return body, nil
	} else if err != errs.ErrNotFound {
		return nil, fmt.Errorf("patchblob: read %s: %w", path, err)
	}

	body, err := h.adapter.GetPatchRaw(ctx, key.list, key.messageID)
	if err != nil {
		return nil, fmt.Errorf("patchblob: fetch %s/%s: %w", key.list, key.messageID, err)
	}

	if err := h.fs.Write(ctx, path, body); err != nil {
		slog.Warn("patchblob: write-through failed", "list", key.list, "message_id", key.messageID, "error", err)
	}
	cache.Add(key, body)
	return body, nil
}

func invalidate(ctx context.Context, h *liveHandle, cache *lru.Cache[blobKey, []byte], key blobKey) error {
	cache.Remove(key)

	path := key.diskPath(h.dir)
	if err := h.fs.Remove(ctx, path); err != nil {
		return fmt.Errorf("patchblob: invalidate %s: %w", path, err)
	}
	return nil
}

func (h *liveHandle) Get(ctx context.Context, list, messageID string) (*loremodel.PatchBlob, error) {
	resp, err := actor.Ask(ctx, h.mb, request{op: opGet, key: blobKey{list: list, messageID: messageID}})
	if err != nil {
		return nil, err
	}
	if resp.err != nil {
		return nil, resp.err
	}
	return &loremodel.PatchBlob{List: list, MessageID: messageID, Body: resp.body}, nil
}

func (h *liveHandle) Invalidate(ctx context.Context, list, messageID string) error {
	resp, err := actor.Ask(ctx, h.mb, request{op: opInvalidate, key: blobKey{list: list, messageID: messageID}})
	if err != nil {
		return err
	}
	return resp.err
}

func (h *liveHandle) IsAvailable(ctx context.Context, list, messageID string) (bool, error) {
	resp, err := actor.Ask(ctx, h.mb, request{op: opIsAvailable, key: blobKey{list: list, messageID: messageID}})
	if err != nil {
		return false, err
	}
	return resp.available, resp.err
}

// DefaultDir returns the conventional disk tier root under cacheRoot.
func DefaultDir(cacheRoot string) string {
	return filepath.Join(cacheRoot, "patch")
}

// stubHandle serves Get from a seeded in-memory map with a trivial
// unbounded buffer, for tests that do not exercise eviction.
type stubHandle struct {
	blobs     map[blobKey][]byte
	buffered  map[blobKey]struct{}
	fetchErrs map[blobKey]error
}

// StubData seeds a stub Handle. Nothing starts buffered: every blob is
// served as if freshly fetched (IsAvailable false until Get is called).
type StubData struct {
	Blobs map[string]map[string][]byte
	Errs  map[string]map[string]error
}

// NewStub returns a Handle serving data, with nothing pre-buffered.
func NewStub(data StubData) Handle {
	blobs := make(map[blobKey][]byte)
	for list, byID := range data.Blobs {
		for id, body := range byID {
			blobs[blobKey{list: list, messageID: id}] = body
		}
	}
	fetchErrs := make(map[blobKey]error)
	for list, byID := range data.Errs {
		for id, err := range byID {
			fetchErrs[blobKey{list: list, messageID: id}] = err
		}
	}
	return &stubHandle{blobs: blobs, buffered: make(map[blobKey]struct{}), fetchErrs: fetchErrs}
}

func (h *stubHandle) Get(_ context.Context, list, messageID string) (*loremodel.PatchBlob, error) {
	key := blobKey{list: list, messageID: messageID}
	if err, ok := h.fetchErrs[key]; ok {
		return nil, err
	}
	body, ok := h.blobs[key]
	if !ok {
		return nil, errs.ErrNotFound
	}
	h.buffered[key] = struct{}{}
	return &loremodel.PatchBlob{List: list, MessageID: messageID, Body: body}, nil
}

func (h *stubHandle) Invalidate(_ context.Context, list, messageID string) error {
	key := blobKey{list: list, messageID: messageID}
	delete(h.buffered, key)
	delete(h.blobs, key)
	return nil
}

func (h *stubHandle) IsAvailable(_ context.Context, list, messageID string) (bool, error) {
	_, ok := h.buffered[blobKey{list: list, messageID: messageID}]
	return ok, nil
}
