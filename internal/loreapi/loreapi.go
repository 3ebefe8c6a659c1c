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

// Package loreapi is the L1 adapter for the Lore Kernel Archive: URL
// construction, request headers, end-of-feed detection and response
// parsing for the patch feed, the available-lists page and the three
// per-patch endpoints (HTML, raw, JSON metadata).
package loreapi

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/patchlore/patch-hub/internal/actor"
	"github.com/patchlore/patch-hub/internal/loremodel"
	"github.com/patchlore/patch-hub/internal/netclient"
)

// DefaultDomain is the Lore Kernel Archive's root, matching the
// archive's public address.
const DefaultDomain = "https://lore.kernel.org"

// Handle is the dual (live/stub) contract for the Lore adapter.
type Handle interface {
	// GetPatchFeedPage returns one page of a list's patch feed starting
	// at startIndex, or a nil page with a nil error when the archive
	// signals end-of-feed (the "</feed>" sentinel body).
	GetPatchFeedPage(ctx context.Context, list string, startIndex int) (*loremodel.Page[loremodel.PatchMetadata], error)
	// GetAvailableListsPage returns one page of the available-lists
	// listing starting at startIndex.
	GetAvailableListsPage(ctx context.Context, startIndex int) (loremodel.Page[loremodel.MailingList], error)
	// GetAvailableLists accumulates every page of the available-lists
	// listing into a single sequence.
	GetAvailableLists(ctx context.Context) ([]loremodel.MailingList, error)
	// GetPatchHTML returns the rendered HTML page for one patch.
	GetPatchHTML(ctx context.Context, list, messageID string) ([]byte, error)
	// GetPatchRaw returns the raw mbox-format body of one patch.
	GetPatchRaw(ctx context.Context, list, messageID string) ([]byte, error)
	// GetPatchMetadata returns the JSON metadata document for one patch.
	GetPatchMetadata(ctx context.Context, list, messageID string) ([]byte, error)
}

type opKind int

const (
	opPatchFeedPage opKind = iota
	opAvailableListsPage
	opPatchHTML
	opPatchRaw
	opPatchMetadata
)

type request struct {
	op         opKind
	list       string
	messageID  string
	startIndex int
}

type result struct {
	feedPage *loremodel.Page[loremodel.PatchMetadata]
	listPage loremodel.Page[loremodel.MailingList]
	bytes    []byte
	err      error
}

// liveHandle drains a mailbox of adapter requests on one goroutine,
// issuing each against the transport actor in turn — the Lore archive
// has no documented concurrency budget, so requests are serialized the
// same way every other patch-hub actor serializes its work.
type liveHandle struct {
	mb     actor.Mailbox[request, result]
	net    netclient.Handle
	domain string
}

// NewLive spawns the Lore adapter actor against net, targeting domain
// (DefaultDomain in production).
func NewLive(ctx context.Context, net netclient.Handle, domain string) Handle {
	h := &liveHandle{
		mb:     actor.NewMailbox[request, result](64),
		net:    net,
		domain: domain,
	}
	go actor.Loop(ctx, h.mb, func(req request) result {
		return h.handle(ctx, req)
	})
	return h
}

func (h *liveHandle) handle(ctx context.Context, req request) result {
	switch req.op {
	case opPatchFeedPage:
		page, err := h.fetchPatchFeedPage(ctx, req.list, req.startIndex)
		return result{feedPage: page, err: err}
	case opAvailableListsPage:
		page, err := h.fetchAvailableListsPage(ctx, req.startIndex)
		return result{listPage: page, err: err}
	case opPatchHTML:
		body, err := h.fetchBytes(ctx, patchHTMLURL(h.domain, req.list, req.messageID), "text/html,application/xhtml+xml,application/xml")
		return result{bytes: body, err: err}
	case opPatchRaw:
		body, err := h.fetchBytes(ctx, patchRawURL(h.domain, req.list, req.messageID), "text/plain")
		return result{bytes: body, err: err}
	case opPatchMetadata:
		body, err := h.fetchBytes(ctx, patchMetadataURL(h.domain, req.list, req.messageID), "application/json")
		return result{bytes: body, err: err}
	default:
		return result{err: fmt.Errorf("loreapi: unknown operation %d", req.op)}
	}
}

func patchFeedURL(domain, list string, offset int) string {
	return fmt.Sprintf("%s/%s/?x=A&q=((s:patch+OR+s:rfc)+AND+NOT+s:re:)&o=%d", domain, list, offset)
}

func availableListsURL(domain string, offset int) string {
	return fmt.Sprintf("%s/?&o=%d", domain, offset)
}

func patchHTMLURL(domain, list, messageID string) string {
	return fmt.Sprintf("%s/%s/%s/", domain, list, messageID)
}

func patchRawURL(domain, list, messageID string) string {
	return fmt.Sprintf("%s/%s/%s/raw", domain, list, messageID)
}

func patchMetadataURL(domain, list, messageID string) string {
	return fmt.Sprintf("%s/%s/%s/json", domain, list, messageID)
}

func (h *liveHandle) fetchBytes(ctx context.Context, url, accept string) ([]byte, error) {
	resp, err := h.net.Get(ctx, netclient.Request{URL: url, Headers: map[string]string{"Accept": accept}})
	if err != nil {
		return nil, fmt.Errorf("loreapi: fetch %s: %w", url, err)
	}
	return resp.Body, nil
}

func (h *liveHandle) fetchPatchFeedPage(ctx context.Context, list string, startIndex int) (*loremodel.Page[loremodel.PatchMetadata], error) {
	url := patchFeedURL(h.domain, list, startIndex)
	resp, err := h.net.Get(ctx, netclient.Request{
		URL:     url,
		Headers: map[string]string{"Accept": "text/html,application/xhtml+xml,application/xml"},
	})
	if err != nil {
		return nil, fmt.Errorf("loreapi: fetch patch feed for %s: %w", list, err)
	}

	if string(resp.Body) == "</feed>" {
		slog.Debug("loreapi: end of feed", "list", list, "start_index", startIndex)
		return nil, nil
	}

	page, err := parsePatchFeedXML(resp.Body, list, startIndex)
	if err != nil {
		return nil, fmt.Errorf("loreapi: parse patch feed for %s: %w", list, err)
	}
	return page, nil
}

func (h *liveHandle) fetchAvailableListsPage(ctx context.Context, startIndex int) (loremodel.Page[loremodel.MailingList], error) {
	url := availableListsURL(h.domain, startIndex)
	resp, err := h.net.Get(ctx, netclient.Request{
		URL:     url,
		Headers: map[string]string{"Accept": "text/html,application/xhtml+xml,application/xml"},
	})
	if err != nil {
		return loremodel.Page[loremodel.MailingList]{}, fmt.Errorf("loreapi: fetch available lists: %w", err)
	}

	page, err := parseAvailableListsHTML(resp.Body, startIndex)
	if err != nil {
		return loremodel.Page[loremodel.MailingList]{}, fmt.Errorf("loreapi: parse available lists: %w", err)
	}
	return page, nil
}

func (h *liveHandle) GetPatchFeedPage(ctx context.Context, list string, startIndex int) (*loremodel.Page[loremodel.PatchMetadata], error) {
	resp, err := actor.Ask(ctx, h.mb, request{op: opPatchFeedPage, list: list, startIndex: startIndex})
	if err != nil {
		return nil, err
	}
	return resp.feedPage, resp.err
}

func (h *liveHandle) GetAvailableListsPage(ctx context.Context, startIndex int) (loremodel.Page[loremodel.MailingList], error) {
	resp, err := actor.Ask(ctx, h.mb, request{op: opAvailableListsPage, startIndex: startIndex})
	if err != nil {
		return loremodel.Page[loremodel.MailingList]{}, err
	}
	return resp.listPage, resp.err
}

// GetAvailableLists repeatedly requests pages, accumulating items,
// stopping when next_page_index is absent or equals total_items. Pages
// depend on the previous page's offset, so this is necessarily
// sequential.
func (h *liveHandle) GetAvailableLists(ctx context.Context) ([]loremodel.MailingList, error) {
	var all []loremodel.MailingList
	offset := 0
	for {
		page, err := h.GetAvailableListsPage(ctx, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)

		if page.NextPageIndex == nil {
			break
		}
		if page.TotalItems != nil && *page.NextPageIndex >= *page.TotalItems {
			break
		}
		offset = *page.NextPageIndex
	}
	return all, nil
}

func (h *liveHandle) GetPatchHTML(ctx context.Context, list, messageID string) ([]byte, error) {
	resp, err := actor.Ask(ctx, h.mb, request{op: opPatchHTML, list: list, messageID: messageID})
	if err != nil {
		return nil, err
	}
	return resp.bytes, resp.err
}

func (h *liveHandle) GetPatchRaw(ctx context.Context, list, messageID string) ([]byte, error) {
	resp, err := actor.Ask(ctx, h.mb, request{op: opPatchRaw, list: list, messageID: messageID})
	if err != nil {
		return nil, err
	}
	return resp.bytes, resp.err
}

func (h *liveHandle) GetPatchMetadata(ctx context.Context, list, messageID string) ([]byte, error) {
	resp, err := actor.Ask(ctx, h.mb, request{op: opPatchMetadata, list: list, messageID: messageID})
	if err != nil {
		return nil, err
	}
	return resp.bytes, resp.err
}

// stubHandle serves every operation from seeded in-memory tables, for
// tests that exercise the cache layer without a real archive.
type stubHandle struct {
	feedPages map[string]map[int]*loremodel.Page[loremodel.PatchMetadata]
	listPages map[int]loremodel.Page[loremodel.MailingList]
	blobs     map[string][]byte
	errs      map[string]error
}

// StubData seeds a stub Handle.
type StubData struct {
	// FeedPages maps list -> startIndex -> page. A nil page value means
	// end-of-feed at that offset.
	FeedPages map[string]map[int]*loremodel.Page[loremodel.PatchMetadata]
	// ListPages maps startIndex -> page.
	ListPages map[int]loremodel.Page[loremodel.MailingList]
	// Blobs maps a key of "op:list:messageID" to its response bytes, for
	// GetPatchHTML/GetPatchRaw/GetPatchMetadata.
	Blobs map[string][]byte
	Errs  map[string]error
}

// NewStub returns a Handle serving data.
func NewStub(data StubData) Handle {
	return &stubHandle{
		feedPages: data.FeedPages,
		listPages: data.ListPages,
		blobs:     data.Blobs,
		errs:      data.Errs,
	}
}

func (h *stubHandle) GetPatchFeedPage(_ context.Context, list string, startIndex int) (*loremodel.Page[loremodel.PatchMetadata], error) {
	pages, ok := h.feedPages[list]
	if !ok {
		return nil, nil
	}
	return pages[startIndex], nil
}

func (h *stubHandle) GetAvailableListsPage(_ context.Context, startIndex int) (loremodel.Page[loremodel.MailingList], error) {
	return h.listPages[startIndex], nil
}

func (h *stubHandle) GetAvailableLists(ctx context.Context) ([]loremodel.MailingList, error) {
	var all []loremodel.MailingList
	offset := 0
	for {
		page, err := h.GetAvailableListsPage(ctx, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if page.NextPageIndex == nil {
			break
		}
		if page.TotalItems != nil && *page.NextPageIndex >= *page.TotalItems {
			break
		}
		offset = *page.NextPageIndex
	}
	return all, nil
}

func blobKey(op, list, messageID string) string {
	return op + ":" + list + ":" + messageID
}

func (h *stubHandle) GetPatchHTML(_ context.Context, list, messageID string) ([]byte, error) {
	return h.lookupBlob("html", list, messageID)
}

func (h *stubHandle) GetPatchRaw(_ context.Context, list, messageID string) ([]byte, error) {
	return h.lookupBlob("raw", list, messageID)
}

func (h *stubHandle) GetPatchMetadata(_ context.Context, list, messageID string) ([]byte, error) {
	return h.lookupBlob("json", list, messageID)
}

func (h *stubHandle) lookupBlob(op, list, messageID string) ([]byte, error) {
	key := blobKey(op, list, messageID)
	if err, ok := h.errs[key]; ok {
		return nil, err
	}
	return h.blobs[key], nil
}
