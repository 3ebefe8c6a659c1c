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

// Package mailinglist implements the MailingListIndex cache: the
// alphabetically-ordered, demand-filled, disk-persisted sequence of
// every mailing list the archive hosts.
package mailinglist

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/patchlore/patch-hub/internal/actor"
	"github.com/patchlore/patch-hub/internal/errs"
	"github.com/patchlore/patch-hub/internal/fsstore"
	"github.com/patchlore/patch-hub/internal/loreapi"
	"github.com/patchlore/patch-hub/internal/loremodel"
)

// Handle is the dual (live/stub) contract for the MailingListIndex
// cache: the demand-filled, disk-persisted, alphabetically-ordered
// sequence of every mailing list the archive hosts.
type Handle interface {
	Get(ctx context.Context, i int) (*loremodel.MailingList, error)
	GetSlice(ctx context.Context, start, end int) ([]loremodel.MailingList, error)
	Len(ctx context.Context) (int, error)
	Refresh(ctx context.Context) error
	Invalidate(ctx context.Context) error
	IsValid(ctx context.Context) (bool, error)
	Persist(ctx context.Context) error
	Load(ctx context.Context) error
	IsAvailable(ctx context.Context, start, end int) (bool, error)
}

type opKind int

const (
	opGet opKind = iota
	opGetSlice
	opLen
	opRefresh
	opInvalidate
	opIsValid
	opPersist
	opLoad
	opIsAvailable
)

type request struct {
	op         opKind
	index      int
	start, end int
}

type response struct {
	item      *loremodel.MailingList
	items     []loremodel.MailingList
	length    int
	valid     bool
	available bool
	err       error
}

// diskFile is the on-disk `mailing_lists.toml` shape: a single array
// of records under one TOML file.
type diskFile struct {
	MailingLists []loremodel.MailingList `toml:"mailing_lists"`
}

// liveHandle runs the single actor goroutine holding the cached prefix.
// Every mutation happens inside handle, run serially off the mailbox,
// so the cache slice never needs its own lock.
type liveHandle struct {
	mb      actor.Mailbox[request, response]
	adapter loreapi.Handle
	fs      fsstore.Handle
	path    string
}

// NewLive spawns the MailingListIndex actor. path is the TOML file
// location (normally `<cache_root>/mailing_lists.toml`).
func NewLive(ctx context.Context, adapter loreapi.Handle, fs fsstore.Handle, path string) Handle {
	h := &liveHandle{
		mb:      actor.NewMailbox[request, response](64),
		adapter: adapter,
		fs:      fs,
		path:    path,
	}

	var cache []loremodel.MailingList
	go actor.Loop(ctx, h.mb, func(req request) response {
		return handle(ctx, h, &cache, req)
	})
	return h
}

func handle(ctx context.Context, h *liveHandle, cache *[]loremodel.MailingList, req request) response {
	switch req.op {
	case opGet:
		if err := fill(ctx, h, cache, req.index+1); err != nil {
			return response{err: err}
		}
		if req.index < 0 || req.index >= len(*cache) {
			return response{}
		}
		item := (*cache)[req.index]
		return response{item: &item}

	case opGetSlice:
		if err := fill(ctx, h, cache, req.end); err != nil {
			return response{err: err}
		}
		start, end := req.start, req.end
		if start > len(*cache) {
			start = len(*cache)
		}
		if end > len(*cache) {
			end = len(*cache)
		}
		if start >= end {
			return response{items: []loremodel.MailingList{}}
		}
		items := append([]loremodel.MailingList(nil), (*cache)[start:end]...)
		return response{items: items}

	case opLen:
		return response{length: len(*cache)}

	case opIsAvailable:
		return response{available: len(*cache) >= req.end}

	case opInvalidate:
		*cache = nil
		return response{}

	case opIsValid:
		valid, err := isValid(ctx, h, *cache)
		return response{valid: valid, err: err}

	case opRefresh:
		next, err := refresh(ctx, h, *cache)
		if err != nil {
			return response{err: err}
		}
		*cache = next
		return response{}

	case opPersist:
		return response{err: persist(ctx, h, *cache)}

	case opLoad:
		loaded, err := load(ctx, h)
		if err != nil {
			return response{err: err}
		}
		*cache = loaded
		return response{}

	default:
		return response{err: fmt.Errorf("mailinglist: unknown operation %d", req.op)}
	}
}

// fill extends cache by demand-fetching pages from the adapter until
// its length reaches want, or the adapter signals exhaustion.
func fill(ctx context.Context, h *liveHandle, cache *[]loremodel.MailingList, want int) error {
	for len(*cache) < want {
		page, err := h.adapter.GetAvailableListsPage(ctx, len(*cache))
		if err != nil {
			return fmt.Errorf("mailinglist: fill at offset %d: %w", len(*cache), err)
		}
		if len(page.Items) == 0 {
			break
		}
		*cache = append(*cache, page.Items...)
		if page.NextPageIndex == nil {
			break
		}
	}
	return nil
}

// refresh fetches page 0; if empty, leaves the cache untouched; if
// page[0].LastUpdate matches the cached 0th item, returns unchanged;
// otherwise replaces the cache wholesale.
func refresh(ctx context.Context, h *liveHandle, cache []loremodel.MailingList) ([]loremodel.MailingList, error) {
	page, err := h.adapter.GetAvailableListsPage(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("mailinglist: refresh page 0: %w", err)
	}
	if len(page.Items) == 0 {
		return cache, nil
	}
	if len(cache) > 0 && page.Items[0].LastUpdate.Equal(cache[0].LastUpdate) {
		return cache, nil
	}
	slog.Info("mailinglist: cache replaced on refresh", "new_head", page.Items[0].Name)
	return append([]loremodel.MailingList(nil), page.Items...), nil
}

func isValid(ctx context.Context, h *liveHandle, cache []loremodel.MailingList) (bool, error) {
	if len(cache) == 0 {
		return true, nil
	}
	page, err := h.adapter.GetAvailableListsPage(ctx, 0)
	if err != nil {
		return false, fmt.Errorf("mailinglist: is_valid fetch page 0: %w", err)
	}
	if len(page.Items) == 0 {
		return false, nil
	}
	return page.Items[0].LastUpdate.Equal(cache[0].LastUpdate), nil
}

func persist(ctx context.Context, h *liveHandle, cache []loremodel.MailingList) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(diskFile{MailingLists: cache}); err != nil {
		return fmt.Errorf("mailinglist: encode %s: %w", h.path, err)
	}
	if err := h.fs.Write(ctx, h.path, buf.Bytes()); err != nil {
		return fmt.Errorf("mailinglist: write %s: %w", h.path, err)
	}
	return nil
}

// load reads the persisted file; a missing file is the expected
// cold-start path and yields an empty cache, not an error.
func load(ctx context.Context, h *liveHandle) ([]loremodel.MailingList, error) {
	data, err := h.fs.Read(ctx, h.path)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("mailinglist: read %s: %w", h.path, err)
	}

	var df diskFile
	if _, err := toml.Decode(string(data), &df); err != nil {
		return nil, fmt.Errorf("mailinglist: decode %s: %w", h.path, err)
	}
	return df.MailingLists, nil
}

func isNotFound(err error) bool {
	return err == errs.ErrNotFound
}

func (h *liveHandle) Get(ctx context.Context, i int) (*loremodel.MailingList, error) {
	resp, err := actor.Ask(ctx, h.mb, request{op: opGet, index: i})
	if err != nil {
		return nil, err
	}
	return resp.item, resp.err
}

func (h *liveHandle) GetSlice(ctx context.Context, start, end int) ([]loremodel.MailingList, error) {
	resp, err := actor.Ask(ctx, h.mb, request{op: opGetSlice, start: start, end: end})
	if err != nil {
		return nil, err
	}
	return resp.items, resp.err
}

func (h *liveHandle) Len(ctx context.Context) (int, error) {
	resp, err := actor.Ask(ctx, h.mb, request{op: opLen})
	if err != nil {
		return 0, err
	}
	return resp.length, resp.err
}

func (h *liveHandle) Refresh(ctx context.Context) error {
	resp, err := actor.Ask(ctx, h.mb, request{op: opRefresh})
	if err != nil {
		return err
	}
	return resp.err
}

func (h *liveHandle) Invalidate(ctx context.Context) error {
	resp, err := actor.Ask(ctx, h.mb, request{op: opInvalidate})
	if err != nil {
		return err
	}
	return resp.err
}

func (h *liveHandle) IsValid(ctx context.Context) (bool, error) {
	resp, err := actor.Ask(ctx, h.mb, request{op: opIsValid})
	if err != nil {
		return false, err
	}
	return resp.valid, resp.err
}

func (h *liveHandle) Persist(ctx context.Context) error {
	resp, err := actor.Ask(ctx, h.mb, request{op: opPersist})
	if err != nil {
		return err
	}
	return resp.err
}

func (h *liveHandle) Load(ctx context.Context) error {
	resp, err := actor.Ask(ctx, h.mb, request{op: opLoad})
	if err != nil {
		return err
	}
	return resp.err
}

func (h *liveHandle) IsAvailable(ctx context.Context, start, end int) (bool, error) {
	resp, err := actor.Ask(ctx, h.mb, request{op: opIsAvailable, start: start, end: end})
	if err != nil {
		return false, err
	}
	return resp.available, resp.err
}

// DefaultPath returns the conventional on-disk location under
// cacheRoot.
func DefaultPath(cacheRoot string) string {
	return filepath.Join(cacheRoot, "mailing_lists.toml")
}

// stubHandle serves every operation synchronously against an
// in-memory slice, for tests that do not need the actor goroutine.
type stubHandle struct {
	cache []loremodel.MailingList
}

// NewStub returns a Handle pre-seeded with cache, operating purely
// in-memory (Persist and Load are no-ops; Load does not restore the
// seed after Invalidate).
func NewStub(cache []loremodel.MailingList) Handle {
	return &stubHandle{cache: append([]loremodel.MailingList(nil), cache...)}
}

func (h *stubHandle) Get(_ context.Context, i int) (*loremodel.MailingList, error) {
	if i < 0 || i >= len(h.cache) {
		return nil, nil
	}
	item := h.cache[i]
	return &item, nil
}

func (h *stubHandle) GetSlice(_ context.Context, start, end int) ([]loremodel.MailingList, error) {
	if start > len(h.cache) {
		start = len(h.cache)
	}
	if end > len(h.cache) {
		end = len(h.cache)
	}
	if start >= end {
		return []loremodel.MailingList{}, nil
	}
	return append([]loremodel.MailingList(nil), h.cache[start:end]...), nil
}

func (h *stubHandle) Len(context.Context) (int, error) {
	return len(h.cache), nil
}

func (h *stubHandle) Refresh(context.Context) error    { return nil }
func (h *stubHandle) Invalidate(context.Context) error { h.cache = nil; return nil }
func (h *stubHandle) IsValid(context.Context) (bool, error) {
	return true, nil
}
func (h *stubHandle) Persist(context.Context) error { return nil }
func (h *stubHandle) Load(context.Context) error    { return nil }
func (h *stubHandle) IsAvailable(_ context.Context, _, end int) (bool, error) {
	return len(h.cache) >= end, nil
}
