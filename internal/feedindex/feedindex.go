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

// Package feedindex implements the FeedIndex cache: the per-list,
// newest-first patch feed, demand-filled like MailingListIndex but
// refreshed by prepending newer entries instead of replacing the whole
// cache.
package feedindex

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/patchlore/patch-hub/internal/actor"
	"github.com/patchlore/patch-hub/internal/errs"
	"github.com/patchlore/patch-hub/internal/fsstore"
	"github.com/patchlore/patch-hub/internal/loreapi"
	"github.com/patchlore/patch-hub/internal/loremodel"
)

// Handle is the dual (live/stub) contract for the FeedIndex cache:
// MailingListIndex's same shape of operations, keyed by list name
// throughout since each list has its own independently cached feed.
type Handle interface {
	Get(ctx context.Context, list string, i int) (*loremodel.PatchMetadata, error)
	GetSlice(ctx context.Context, list string, start, end int) ([]loremodel.PatchMetadata, error)
	Len(ctx context.Context, list string) (int, error)
	Refresh(ctx context.Context, list string) error
	Invalidate(ctx context.Context, list string) error
	IsValid(ctx context.Context, list string) (bool, error)
	Persist(ctx context.Context, list string) error
	Load(ctx context.Context, list string) error
	IsAvailable(ctx context.Context, list string, start, end int) (bool, error)
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
	list       string
	index      int
	start, end int
}

type response struct {
	item      *loremodel.PatchMetadata
	items     []loremodel.PatchMetadata
	length    int
	valid     bool
	available bool
	err       error
}

// listState is one list's cached feed plus its persisted last_updated
// marker, mirroring the `feeds`/`last_updated` TOML layout on disk.
type listState struct {
	feed        []loremodel.PatchMetadata
	lastUpdated time.Time
}

// diskFile mirrors `feed/<list>.toml`'s `{feeds, last_updated}` shape.
// Both maps are keyed by list name even though one file holds exactly
// one list, per the original source's per-list persisted map (see
// SPEC_FULL.md §9) — this keeps the file's shape self-describing.
type diskFile struct {
	Feeds       map[string][]loremodel.PatchMetadata `toml:"feeds"`
	LastUpdated map[string]time.Time                 `toml:"last_updated"`
}

type liveHandle struct {
	mb      actor.Mailbox[request, response]
	adapter loreapi.Handle
	fs      fsstore.Handle
	dir     string
}

// NewLive spawns the FeedIndex actor. dir is the per-list TOML
// directory (normally `<cache_root>/feed`).
func NewLive(ctx context.Context, adapter loreapi.Handle, fs fsstore.Handle, dir string) Handle {
	h := &liveHandle{
		mb:      actor.NewMailbox[request, response](64),
		adapter: adapter,
		fs:      fs,
		dir:     dir,
	}

	states := make(map[string]*listState)
	go actor.Loop(ctx, h.mb, func(req request) response {
		return dispatch(ctx, h, states, req)
	})
	return h
}

func dispatch(ctx context.Context, h *liveHandle, states map[string]*listState, req request) response {
	st, ok := states[req.list]
	if !ok {
		st = &listState{}
		states[req.list] = st
	}

	switch req.op {
	case opGet:
		if err := fill(ctx, h, req.list, st, req.index+1); err != nil {
			return response{err: err}
		}
		if req.index < 0 || req.index >= len(st.feed) {
			return response{}
		}
		item := st.feed[req.index]
		return response{item: &item}

	case opGetSlice:
		if err := fill(ctx, h, req.list, st, req.end); err != nil {
			return response{err: err}
		}
		start, end := req.start, req.end
		if start > len(st.feed) {
			start = len(st.feed)
		}
		if end > len(st.feed) {
			end = len(st.feed)
		}
		if start >= end {
			return response{items: []loremodel.PatchMetadata{}}
		}
		items := append([]loremodel.PatchMetadata(nil), st.feed[start:end]...)
		return response{items: items}

	case opLen:
		return response{length: len(st.feed)}

	case opIsAvailable:
		return response{available: len(st.feed) >= req.end}

	case opInvalidate:
		st.feed = nil
		return response{}

	case opIsValid:
		valid, err := isValid(ctx, h, req.list, st)
		return response{valid: valid, err: err}

	case opRefresh:
		if err := refresh(ctx, h, req.list, st); err != nil {
			return response{err: err}
		}
		return response{}

	case opPersist:
		return response{err: persist(ctx, h, req.list, st)}

	case opLoad:
		loaded, updated, err := load(ctx, h, req.list)
		if err != nil {
			return response{err: err}
		}
		st.feed = loaded
		st.lastUpdated = updated
		return response{}

	default:
		return response{err: fmt.Errorf("feedindex: unknown operation %d", req.op)}
	}
}

// fill extends st.feed by demand-fetching pages until its length
// reaches want or the adapter signals exhaustion (identical in shape
// to MailingListIndex's fill).
func fill(ctx context.Context, h *liveHandle, list string, st *listState, want int) error {
	for len(st.feed) < want {
		page, err := h.adapter.GetPatchFeedPage(ctx, list, len(st.feed))
		if err != nil {
			return fmt.Errorf("feedindex: fill %s at offset %d: %w", list, len(st.feed), err)
		}
		if page == nil || len(page.Items) == 0 {
			break
		}
		st.feed = append(st.feed, page.Items...)
		if page.NextPageIndex == nil {
			break
		}
	}
	return nil
}

// refresh prepends newer entries instead of replacing the cache
// wholesale, since a list's feed only ever grows at the head. If the
// cache is empty, it seeds from page 0. Otherwise it walks pages forward
// from offset 0 until the previously-newest message_id reappears (the
// overlap point, left untouched) or the adapter runs out of pages,
// prepending every item it sees, deduped by message_id to satisfy the
// uniqueness invariant even if the archive's sequence shifted under us.
func refresh(ctx context.Context, h *liveHandle, list string, st *listState) error {
	if len(st.feed) == 0 {
		page, err := h.adapter.GetPatchFeedPage(ctx, list, 0)
		if err != nil {
			return fmt.Errorf("feedindex: refresh seed %s: %w", list, err)
		}
		if page != nil {
			st.feed = append([]loremodel.PatchMetadata(nil), page.Items...)
			if len(st.feed) > 0 {
				st.lastUpdated = st.feed[0].LastUpdate
			}
		}
		return persist(ctx, h, list, st)
	}

	newestCachedID := st.feed[0].MessageID
	seen := make(map[string]struct{}, len(st.feed))
	for _, item := range st.feed {
		seen[item.MessageID] = struct{}{}
	}

	var prepended []loremodel.PatchMetadata
	offset := 0
	for {
		page, err := h.adapter.GetPatchFeedPage(ctx, list, offset)
		if err != nil {
			return fmt.Errorf("feedindex: refresh %s at offset %d: %w", list, offset, err)
		}
		if page == nil || len(page.Items) == 0 {
			break
		}

		stop := false
		for _, item := range page.Items {
			if item.MessageID == newestCachedID {
				stop = true
				break
			}
			if _, dup := seen[item.MessageID]; dup {
				continue
			}
			seen[item.MessageID] = struct{}{}
			prepended = append(prepended, item)
		}
		if stop {
			break
		}
		if page.NextPageIndex == nil {
			break
		}
		offset = *page.NextPageIndex
	}

	if len(prepended) > 0 {
		st.feed = append(prepended, st.feed...)
		st.lastUpdated = st.feed[0].LastUpdate
		slog.Info("feedindex: prepended newer entries", "list", list, "count", len(prepended))
	}

	return persist(ctx, h, list, st)
}

func isValid(ctx context.Context, h *liveHandle, list string, st *listState) (bool, error) {
	if len(st.feed) == 0 {
		return true, nil
	}
	page, err := h.adapter.GetPatchFeedPage(ctx, list, 0)
	if err != nil {
		return false, fmt.Errorf("feedindex: is_valid fetch %s page 0: %w", list, err)
	}
	if page == nil || len(page.Items) == 0 {
		return false, nil
	}
	return page.Items[0].LastUpdate.Equal(st.feed[0].LastUpdate), nil
}

func pathFor(dir, list string) string {
	return filepath.Join(dir, list+".toml")
}

func persist(ctx context.Context, h *liveHandle, list string, st *listState) error {
	df := diskFile{
		Feeds:       map[string][]loremodel.PatchMetadata{list: st.feed},
		LastUpdated: map[string]time.Time{list: st.lastUpdated},
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(df); err != nil {
		return fmt.Errorf("feedindex: encode %s: %w", list, err)
	}
	path := pathFor(h.dir, list)
	if err := h.fs.Write(ctx, path, buf.Bytes()); err != nil {
		return fmt.Errorf("feedindex: write %s: %w", path, err)
	}
	return nil
}

func load(ctx context.Context, h *liveHandle, list string) ([]loremodel.PatchMetadata, time.Time, error) {
	path := pathFor(h.dir, list)
	data, err := h.fs.Read(ctx, path)
	if err != nil {
		if err == errs.ErrNotFound {
			return nil, time.Time{}, nil
		}
		return nil, time.Time{}, fmt.Errorf("feedindex: read %s: %w", path, err)
	}

	var df diskFile
	if _, err := toml.Decode(string(data), &df); err != nil {
		return nil, time.Time{}, fmt.Errorf("feedindex: decode %s: %w", path, err)
	}
	return df.Feeds[list], df.LastUpdated[list], nil
}

func (h *liveHandle) Get(ctx context.Context, list string, i int) (*loremodel.PatchMetadata, error) {
	resp, err := actor.Ask(ctx, h.mb, request{op: opGet, list: list, index: i})
	if err != nil {
		return nil, err
	}
	return resp.item, resp.err
}

func (h *liveHandle) GetSlice(ctx context.Context, list string, start, end int) ([]loremodel.PatchMetadata, error) {
	resp, err := actor.Ask(ctx, h.mb, request{op: opGetSlice, list: list, start: start, end: end})
	if err != nil {
		return nil, err
	}
	return resp.items, resp.err
}

func (h *liveHandle) Len(ctx context.Context, list string) (int, error) {
	resp, err := actor.Ask(ctx, h.mb, request{op: opLen, list: list})
	if err != nil {
		return 0, err
	}
	return resp.length, resp.err
}

func (h *liveHandle) Refresh(ctx context.Context, list string) error {
	resp, err := actor.Ask(ctx, h.mb, request{op: opRefresh, list: list})
	if err != nil {
		return err
	}
	return resp.err
}

func (h *liveHandle) Invalidate(ctx context.Context, list string) error {
	resp, err := actor.Ask(ctx, h.mb, request{op: opInvalidate, list: list})
	if err != nil {
		return err
	}
	return resp.err
}

func (h *liveHandle) IsValid(ctx context.Context, list string) (bool, error) {
	resp, err := actor.Ask(ctx, h.mb, request{op: opIsValid, list: list})
	if err != nil {
		return false, err
	}
	return resp.valid, resp.err
}

func (h *liveHandle) Persist(ctx context.Context, list string) error {
	resp, err := actor.Ask(ctx, h.mb, request{op: opPersist, list: list})
	if err != nil {
		return err
	}
	return resp.err
}

func (h *liveHandle) Load(ctx context.Context, list string) error {
	resp, err := actor.Ask(ctx, h.mb, request{op: opLoad, list: list})
	if err != nil {
		return err
	}
	return resp.err
}

func (h *liveHandle) IsAvailable(ctx context.Context, list string, start, end int) (bool, error) {
	resp, err := actor.Ask(ctx, h.mb, request{op: opIsAvailable, list: list, start: start, end: end})
	if err != nil {
		return false, err
	}
	return resp.available, resp.err
}

// DefaultDir returns the conventional per-list TOML directory under
// cacheRoot.
func DefaultDir(cacheRoot string) string {
	return filepath.Join(cacheRoot, "feed")
}

// stubHandle serves every operation synchronously against in-memory
// per-list state, for tests that do not need the actor goroutine.
type stubHandle struct {
	states map[string][]loremodel.PatchMetadata
}

// NewStub returns a Handle pre-seeded with feeds, keyed by list.
func NewStub(feeds map[string][]loremodel.PatchMetadata) Handle {
	states := make(map[string][]loremodel.PatchMetadata, len(feeds))
	for list, items := range feeds {
		states[list] = append([]loremodel.PatchMetadata(nil), items...)
	}
	return &stubHandle{states: states}
}

func (h *stubHandle) Get(_ context.Context, list string, i int) (*loremodel.PatchMetadata, error) {
	feed := h.states[list]
	if i < 0 || i >= len(feed) {
		return nil, nil
	}
	item := feed[i]
	return &item, nil
}

func (h *stubHandle) GetSlice(_ context.Context, list string, start, end int) ([]loremodel.PatchMetadata, error) {
	feed := h.states[list]
	if start > len(feed) {
		start = len(feed)
	}
	if end > len(feed) {
		end = len(feed)
	}
	if start >= end {
		return []loremodel.PatchMetadata{}, nil
	}
	return append([]loremodel.PatchMetadata(nil), feed[start:end]...), nil
}

func (h *stubHandle) Len(_ context.Context, list string) (int, error) {
	return len(h.states[list]), nil
}

func (h *stubHandle) Refresh(context.Context, string) error { return nil }

func (h *stubHandle) Invalidate(_ context.Context, list string) error {
	h.states[list] = nil
	return nil
}

func (h *stubHandle) IsValid(context.Context, string) (bool, error) { return true, nil }
func (h *stubHandle) Persist(context.Context, string) error         { return nil }
func (h *stubHandle) Load(context.Context, string) error            { return nil }
func (h *stubHandle) IsAvailable(_ context.Context, list string, _, end int) (bool, error) {
	return len(h.states[list]) >= end, nil
}
