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

// patch-hub cache-core CLI
//
// This is the entry point for the cache subsystem's standalone
// consumer surface. It:
//  1. Loads configuration from $HOME/.config/patch-hub/config.toml.
//  2. Wires the filesystem, transport and Lore adapter actors.
//  3. Builds the MailingListIndex, FeedIndex and PatchBlob caches on
//     top of them.
//  4. Dispatches one of lists/feed/patch against the caches.
//  5. Handles graceful cancellation on SIGTERM/SIGINT.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/patchlore/patch-hub/internal/config"
	"github.com/patchlore/patch-hub/internal/feedindex"
	"github.com/patchlore/patch-hub/internal/fsstore"
	"github.com/patchlore/patch-hub/internal/loreapi"
	"github.com/patchlore/patch-hub/internal/mailinglist"
	"github.com/patchlore/patch-hub/internal/netclient"
	"github.com/patchlore/patch-hub/internal/patchblob"
	"github.com/patchlore/patch-hub/internal/render"
)

// callTimeout bounds every interactive cache call at the consumer
// side, so a stalled fetch can't hang the CLI indefinitely.
const callTimeout = 30 * time.Second

const (
	exitSuccess = 0
	exitError   = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: patch-hub <lists|feed|patch> [flags]")
		return exitUsage
	}

	cmd, rest := args[0], args[1:]

	cfgPath, err := config.ConfigPath()
	if err != nil {
		slog.Error("resolve config path", "error", err)
		return exitError
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("load configuration", "error", err)
		return exitError
	}
	setLogLevel(logger, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Phase 1: wire the L0/L1 actors ---
	fs := fsstore.NewLive(ctx)
	net := netclient.NewLive(ctx, cfg.Timeout)
	adapter := loreapi.NewLive(ctx, net, loreapi.DefaultDomain)

	// --- Phase 2: build the L2 caches on top of them ---
	lists := mailinglist.NewLive(ctx, adapter, fs, mailinglist.DefaultPath(cfg.CachePath))
	feeds := feedindex.NewLive(ctx, adapter, fs, feedindex.DefaultDir(cfg.CachePath))
	patches := patchblob.NewLive(ctx, adapter, fs, patchblob.DefaultDir(cfg.CachePath), patchblob.DefaultCapacity)
	renderer := render.NewLive(cfg.PatchRenderer)

	// --- Phase 3: run the command and the signal watcher side by side,
	// cancelling the command's context the moment either finishes ---
	g, gctx := errgroup.WithContext(ctx)
	exitCode := exitSuccess

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		select {
		case sig := <-sigCh:
			slog.Info("received shutdown signal", "signal", sig)
			return fmt.Errorf("patch-hub: interrupted by %s", sig)
		case <-gctx.Done():
			return nil
		}
	})

	g.Go(func() error {
		defer cancel()
		switch cmd {
		case "lists":
			exitCode = runLists(gctx, rest, lists)
		case "feed":
			exitCode = runFeed(gctx, rest, feeds)
		case "patch":
			exitCode = runPatch(gctx, rest, adapter, patches, renderer)
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q; usage: patch-hub <lists|feed|patch> [flags]\n", cmd)
			exitCode = exitUsage
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("patch-hub interrupted", "error", err)
		return exitError
	}
	return exitCode
}

func setLogLevel(logger *slog.Logger, level config.LogLevel) {
	var l slog.Level
	switch level {
	case config.LogLevelWarning:
		l = slog.LevelWarn
	case config.LogLevelError:
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func runLists(ctx context.Context, args []string, h mailinglist.Handle) int {
	fs := pflag.NewFlagSet("lists", pflag.ContinueOnError)
	page := fs.IntP("page", "p", 0, "starting index")
	count := fs.IntP("count", "c", 20, "number of entries")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	slice, err := h.GetSlice(ctx, *page, *page+*count)
	if err != nil {
		slog.Error("lists", "error", err)
		return exitError
	}

	for _, item := range slice {
		fmt.Printf("%s\t%s\n", item.Name, item.Description)
	}
	return exitSuccess
}

func runFeed(ctx context.Context, args []string, h feedindex.Handle) int {
	fs := pflag.NewFlagSet("feed", pflag.ContinueOnError)
	page := fs.IntP("page", "p", 0, "starting index")
	count := fs.IntP("count", "c", 20, "number of entries")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: patch-hub feed <list> [--page N] [--count C]")
		return exitUsage
	}
	list := fs.Arg(0)

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	slice, err := h.GetSlice(ctx, list, *page, *page+*count)
	if err != nil {
		slog.Error("feed", "list", list, "error", err)
		return exitError
	}
	for _, item := range slice {
		fmt.Printf("%s\t%s\t%s\n", item.MessageID, item.Author, item.Title)
	}
	return exitSuccess
}

func runPatch(ctx context.Context, args []string, adapter loreapi.Handle, h patchblob.Handle, r render.Handle) int {
	fs := pflag.NewFlagSet("patch", pflag.ContinueOnError)
	html := fs.Bool("html", false, "render the archive's HTML page instead of the raw mbox body")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "usage: patch-hub patch <list> <message_id> [--html]")
		return exitUsage
	}
	list, messageID := fs.Arg(0), fs.Arg(1)

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	// Only the raw mbox body is content-addressed and cacheable;
	// --html bypasses PatchBlob and fetches directly, since the
	// archive's rendered HTML page is not part of the cache core.
	var body []byte
	kind := render.KindDiff
	if *html {
		htmlBody, err := adapter.GetPatchHTML(ctx, list, messageID)
		if err != nil {
			slog.Error("patch", "list", list, "message_id", messageID, "error", err)
			return exitError
		}
		body, kind = htmlBody, render.KindPlain
	} else {
		blob, err := h.Get(ctx, list, messageID)
		if err != nil {
			slog.Error("patch", "list", list, "message_id", messageID, "error", err)
			return exitError
		}
		body = blob.Body
	}

	if err := r.Render(ctx, os.Stdout, string(body), kind); err != nil {
		slog.Error("render patch", "error", err)
		return exitError
	}
	return exitSuccess
}
