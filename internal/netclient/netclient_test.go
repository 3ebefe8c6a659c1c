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

package netclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	patcherrs "github.com/patchlore/patch-hub/internal/errs"
)

func TestLiveGetSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/atom+xml" {
			t.Errorf("expected Accept header to be forwarded, got %q", r.Header.Get("Accept"))
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewLive(ctx, 5*time.Second)
	resp, err := h.Get(context.Background(), Request{
		URL:     srv.URL,
		Headers: map[string]string{"Accept": "application/atom+xml"},
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.StatusCode != http.StatusOK || string(resp.Body) != "ok" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestLiveGetNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewLive(ctx, 5*time.Second)
	_, err := h.Get(context.Background(), Request{URL: srv.URL})
	if !errors.Is(err, patcherrs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLiveGetServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewLive(ctx, 5*time.Second)
	_, err := h.Get(context.Background(), Request{URL: srv.URL})
	if err == nil {
		t.Fatal("expected error for 5xx response")
	}
}

func TestStubServesSeededResponsesAndErrors(t *testing.T) {
	h := NewStub(
		map[string]Response{"http://ok": {StatusCode: 200, Body: []byte("hi")}},
		map[string]error{"http://boom": errors.New("boom")},
	)

	resp, err := h.Get(context.Background(), Request{URL: "http://ok"})
	if err != nil || string(resp.Body) != "hi" {
		t.Fatalf("unexpected result: %+v, %v", resp, err)
	}

	if _, err := h.Get(context.Background(), Request{URL: "http://boom"}); err == nil {
		t.Fatal("expected seeded error")
	}

	if _, err := h.Get(context.Background(), Request{URL: "http://unknown"}); !errors.Is(err, patcherrs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unseeded URL, got %v", err)
	}
}
