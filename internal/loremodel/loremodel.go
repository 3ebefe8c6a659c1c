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

// Package loremodel defines the data structures shared across patch-hub's
// cache core: mailing lists, patch metadata, pagination envelopes and
// patch blobs.
package loremodel

import "time"

// MailingList is an immutable descriptor of one mailing list in the
// archive. Sequence order is alphabetical by Name.
type MailingList struct {
	Name        string    `toml:"name"`
	Description string    `toml:"description"`
	LastUpdate  time.Time `toml:"last_update"`
}

// PatchMetadata is an immutable feed record. Feed order within a list is
// newest-first (descending LastUpdate); MessageID is the content
// identity within the list.
type PatchMetadata struct {
	Author     string    `toml:"author"`
	Email      string    `toml:"email"`
	LastUpdate time.Time `toml:"last_update"`
	Title      string    `toml:"title"`
	Version    int       `toml:"version"`
	Sequence   *int      `toml:"sequence,omitempty"`
	Link       string    `toml:"link"`
	List       string    `toml:"list"`
	MessageID  string    `toml:"message_id"`
}

// Page is a pagination envelope for one remote response of bounded size.
// Producers guarantee len(Items) <= *TotalItems - StartIndex when
// TotalItems is known.
type Page[T any] struct {
	StartIndex    int
	NextPageIndex *int
	TotalItems    *int
	Items         []T
}

// HasNext reports whether the adapter signalled a further page.
func (p Page[T]) HasNext() bool {
	return p.NextPageIndex != nil
}

// PatchBlob is the raw text of a patch body, content-addressed by
// (List, MessageID). Immutable once fetched.
type PatchBlob struct {
	List      string
	MessageID string
	Body      []byte
}
