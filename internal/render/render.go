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

// Package render gives the configuration's patch_renderer choice a
// concrete, minimal consumer: shelling out to bat or delta to print
// patch content. The TUI's invocation and paging policy around this is
// out of scope; this package only knows how to run one of the two
// external formatters, or print content plain when neither is
// configured.
package render

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/patchlore/patch-hub/internal/config"
)

// Kind distinguishes the two shapes of content patch-hub ever renders.
type Kind int

const (
	// KindPlain is rendered as syntax-highlighted text (bat).
	KindPlain Kind = iota
	// KindDiff is rendered as a diff (delta), falling back to bat/plain
	// when delta isn't the configured renderer.
	KindDiff
)

// Handle is the dual (live/stub) contract for rendering patch content.
type Handle interface {
	Render(ctx context.Context, w io.Writer, content string, kind Kind) error
}

// liveHandle shells out to the configured external formatter. It holds
// no state beyond the renderer choice, so it needs no actor: each
// Render call is an independent subprocess invocation.
type liveHandle struct {
	renderer config.Renderer
}

// NewLive returns a Handle that renders using renderer (None, Bat, or
// Delta), matching the configured patch_renderer choice.
func NewLive(renderer config.Renderer) Handle {
	return &liveHandle{renderer: renderer}
}

func (h *liveHandle) Render(ctx context.Context, w io.Writer, content string, kind Kind) error {
	switch h.renderer {
	case config.RendererDelta:
		if kind == KindDiff {
			return h.shellOut(ctx, w, content, "delta")
		}
		return h.shellOut(ctx, w, content, "bat")
	case config.RendererBat:
		return h.shellOut(ctx, w, content, "bat")
	case config.RendererNone, "":
		_, err := io.WriteString(w, content)
		return err
	default:
		return fmt.Errorf("render: unknown renderer %q", h.renderer)
	}
}

func (h *liveHandle) shellOut(ctx context.Context, w io.Writer, content, program string) error {
	cmd := exec.CommandContext(ctx, program, "--paging=never", "--color=always")
	cmd.Stdin = bytes.NewBufferString(content)
	cmd.Stdout = w
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("render: run %s: %w", program, err)
	}
	return nil
}

// stubHandle records every call for assertion in tests, writing the raw
// content unmodified so callers don't need a real bat/delta binary.
type stubHandle struct {
	calls []StubCall
}

// StubCall records one Render invocation against a stub Handle.
type StubCall struct {
	Content string
	Kind    Kind
}

// NewStub returns a Handle that writes content through unmodified and
// records each call.
func NewStub() *StubHandle {
	return &StubHandle{stub: &stubHandle{}}
}

// StubHandle wraps the stub implementation with access to recorded
// calls for test assertions.
type StubHandle struct {
	stub *stubHandle
}

func (s *StubHandle) Render(_ context.Context, w io.Writer, content string, kind Kind) error {
	s.stub.calls = append(s.stub.calls, StubCall{Content: content, Kind: kind})
	_, err := io.WriteString(w, content)
	return err
}

// Calls returns every Render invocation recorded so far.
func (s *StubHandle) Calls() []StubCall {
	return append([]StubCall(nil), s.stub.calls...)
}
