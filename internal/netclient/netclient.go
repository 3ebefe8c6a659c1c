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

// Package netclient is patch-hub's L0 network transport actor: a single
// GET-with-headers contract the Lore adapter builds on, with a live
// net/http implementation and a stub for tests.
package netclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/patchlore/patch-hub/internal/actor"
	"github.com/patchlore/patch-hub/internal/errs"
)

// Request is one GET: a URL plus the headers the caller needs set
// (notably Accept, since Lore's feed/HTML/raw/JSON endpoints all hang
// off the same host and differ only by header and path shape).
type Request struct {
	URL     string
	Headers map[string]string
}

// Response is the transport result: status and the fully read body. The
// underlying reader is already closed — callers never see *http.Response
// or have to manage the body lifecycle themselves.
type Response struct {
	StatusCode int
	Body       []byte
}

// Handle is the dual (live/stub) contract for the transport actor.
type Handle interface {
	Get(ctx context.Context, req Request) (Response, error)
}

type askEnvelope struct {
	req Request
}

type askResult struct {
	resp Response
	err  error
}

// liveHandle drains a mailbox of fetch requests on a single goroutine,
// issuing them against a shared *http.Client with the configured
// timeout. Serializing fetches through one actor keeps the archive
// request rate bounded and predictable, at the cost of one request in
// flight at a time.
type liveHandle struct {
	mb actor.Mailbox[askEnvelope, askResult]
}

// NewLive spawns the transport actor. timeout bounds each individual
// HTTP round trip and comes from the "timeout" config key.
func NewLive(ctx context.Context, timeout time.Duration) Handle {
	client := &http.Client{Timeout: timeout}
	mb := actor.NewMailbox[askEnvelope, askResult](64)

	go actor.Loop(ctx, mb, func(env askEnvelope) askResult {
		resp, err := do(ctx, client, env.req)
		return askResult{resp: resp, err: err}
	})

	return &liveHandle{mb: mb}
}

func (h *liveHandle) Get(ctx context.Context, req Request) (Response, error) {
	result, err := actor.Ask(ctx, h.mb, askEnvelope{req: req})
	if err != nil {
		return Response{}, err
	}
	return result.resp, result.err
}

func do(ctx context.Context, client *http.Client, req Request) (Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return Response{}, fmt.Errorf("netclient: build request for %s: %w", req.URL, err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	slog.Debug("netclient: GET", "url", req.URL)

	resp, err := client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("netclient: fetch %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("netclient: read body of %s: %w", req.URL, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return Response{StatusCode: resp.StatusCode, Body: body}, errs.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{StatusCode: resp.StatusCode, Body: body}, fmt.Errorf("netclient: %s returned HTTP %d", req.URL, resp.StatusCode)
	}

	return Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// stubHandle answers Get from a seeded map keyed by URL, for tests that
// exercise the Lore adapter without a real HTTP server.
type stubHandle struct {
	responses map[string]Response
	errs      map[string]error
}

// NewStub returns a Handle that serves responses and errs keyed by URL.
// A URL absent from both maps yields errs.ErrNotFound.
func NewStub(responses map[string]Response, errors map[string]error) Handle {
	return &stubHandle{responses: responses, errs: errors}
}

func (h *stubHandle) Get(_ context.Context, req Request) (Response, error) {
	if err, ok := h.errs[req.URL]; ok {
		return Response{}, err
	}
	if resp, ok := h.responses[req.URL]; ok {
		return resp, nil
	}
	return Response{}, errs.ErrNotFound
}
