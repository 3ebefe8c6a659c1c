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

package loreapi

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/patchlore/patch-hub/internal/loremodel"
)

// atomFeed mirrors the subset of the Lore patch feed's Atom XML this
// adapter needs. Lore's entry `id` uses a non-standard lore: URI scheme
// and the pagination math reads directly off start_index/items.len(),
// which is why this is parsed with encoding/xml's field access instead
// of a general-purpose feed library (see DESIGN.md).
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title   string     `xml:"title"`
	Author  atomAuthor `xml:"author"`
	ID      string     `xml:"id"`
	Updated string     `xml:"updated"`
	Link    atomLink   `xml:"link"`
}

type atomAuthor struct {
	Name  string `xml:"name"`
	Email string `xml:"email"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

// titlePattern extracts the patch version and sequence numerator out of
// a subject like "[PATCH v2 3/5] net: fix thing" or "[RFC 1/3] ...".
// Missing version defaults to 1; missing sequence is left nil.
var titlePattern = regexp.MustCompile(`(?i)\[(?:patch|rfc)(?:\s+v(\d+))?(?:\s+(\d+)/\d+)?`)

func parsePatchFeedXML(data []byte, list string, startIndex int) (*loremodel.Page[loremodel.PatchMetadata], error) {
	var feed atomFeed
	if err := xml.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("decode atom feed: %w", err)
	}

	if len(feed.Entries) == 0 {
		return nil, nil
	}

	items := make([]loremodel.PatchMetadata, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		updated, err := time.Parse(time.RFC3339, entry.Updated)
		if err != nil {
			return nil, fmt.Errorf("parse entry updated time %q: %w", entry.Updated, err)
		}

		version, sequence := parseTitleVersion(entry.Title)
		items = append(items, loremodel.PatchMetadata{
			Author:     entry.Author.Name,
			Email:      entry.Author.Email,
			LastUpdate: updated,
			Title:      entry.Title,
			Version:    version,
			Sequence:   sequence,
			Link:       entry.Link.Href,
			List:       list,
			MessageID:  messageIDFromLink(entry.Link.Href, entry.ID, list),
		})
	}

	next := startIndex + len(items)
	return &loremodel.Page[loremodel.PatchMetadata]{
		StartIndex:    startIndex,
		NextPageIndex: &next,
		Items:         items,
	}, nil
}

func parseTitleVersion(title string) (version int, sequence *int) {
	m := titlePattern.FindStringSubmatch(title)
	if m == nil {
		return 1, nil
	}
	version = 1
	if m[1] != "" {
		if v, err := strconv.Atoi(m[1]); err == nil {
			version = v
		}
	}
	if m[2] != "" {
		if s, err := strconv.Atoi(m[2]); err == nil {
			sequence = &s
		}
	}
	return version, sequence
}

// messageIDFromLink recovers the message identifier from a patch entry
// link of the form "{domain}/{list}/{message_id}/" or "{domain}/{list}/{message_id}/T/#u";
// the Atom <id> element carries the same value prefixed with Lore's
// "lore:" URI scheme, used as a fallback when the link is unparseable.
func messageIDFromLink(link, id, list string) string {
	trimmed := strings.TrimSuffix(link, "/")
	if idx := strings.Index(trimmed, "/"+list+"/"); idx >= 0 {
		rest := trimmed[idx+len(list)+2:]
		rest = strings.SplitN(rest, "/", 2)[0]
		if rest != "" {
			return rest
		}
	}
	return strings.TrimPrefix(id, "lore:")
}

var nextPageHrefPattern = regexp.MustCompile(`o=(\d+)`)
var resultsPattern = regexp.MustCompile(`Results\s+\d+(?:-(\d+))?\s+of\s+~?([\d,]+)`)

// parseAvailableListsHTML parses the archive's front-page listing: an
// anchored-text sequence of (date-line, name-anchor-line, description)
// triples inside a <pre> block. The document is loaded
// through goquery so the anchor/text structure is walked as DOM nodes
// rather than scanned as raw bytes; the per-entry three-line grouping
// itself is still linear, matching the archive's own line-oriented
// layout.
func parseAvailableListsHTML(data []byte, startIndex int) (loremodel.Page[loremodel.MailingList], error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return loremodel.Page[loremodel.MailingList]{}, fmt.Errorf("parse lists HTML: %w", err)
	}

	lines := preBlockLines(doc)
	items, err := scanListingLines(lines)
	if err != nil {
		return loremodel.Page[loremodel.MailingList]{}, err
	}

	var nextPageIndex *int
	if m := doc.Find(`a[rel="next"]`).First(); m.Length() > 0 {
		if href, ok := m.Attr("href"); ok {
			if cap := nextPageHrefPattern.FindStringSubmatch(href); cap != nil {
				if n, err := strconv.Atoi(cap[1]); err == nil {
					nextPageIndex = &n
				}
			}
		}
	}

	var totalItems *int
	fullText := doc.Text()
	if cap := resultsPattern.FindStringSubmatch(fullText); cap != nil {
		if cap[1] != "" {
			if n, err := strconv.Atoi(cap[1]); err == nil && nextPageIndex == nil {
				nextPageIndex = &n
			}
		}
		totalStr := strings.ReplaceAll(cap[2], ",", "")
		if total, err := strconv.Atoi(totalStr); err == nil {
			totalItems = &total
		}
	}

	return loremodel.Page[loremodel.MailingList]{
		StartIndex:    startIndex,
		NextPageIndex: nextPageIndex,
		TotalItems:    totalItems,
		Items:         items,
	}, nil
}

// preBlockLines walks the first <pre> element's child nodes in
// document order, turning text nodes into trimmed lines and anchor
// nodes into a single synthetic `href="...">name</a>` line, so the
// line-triple scan below sees the same shape regardless of whether the
// archive emits the anchor as literal text or as a real element.
func preBlockLines(doc *goquery.Document) []string {
	pre := doc.Find("pre").First()
	if pre.Length() == 0 {
		pre = doc.Selection
	}

	var lines []string
	pre.Contents().Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		if node == nil {
			return
		}
		switch node.Type {
		case html.TextNode:
			for _, raw := range strings.Split(node.Data, "\n") {
				line := strings.TrimSpace(raw)
				if line != "" {
					lines = append(lines, line)
				}
			}
		case html.ElementNode:
			if node.Data == "a" {
				href, _ := s.Attr("href")
				name := strings.TrimSpace(s.Text())
				lines = append(lines, fmt.Sprintf(`href="%s">%s</a>`, href, name))
			}
		}
	})
	return lines
}

func scanListingLines(lines []string) ([]loremodel.MailingList, error) {
	var items []loremodel.MailingList

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if !strings.HasPrefix(line, "*") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, fmt.Errorf("mailing list entry missing date/time: %q", line)
		}
		last, err := time.ParseInLocation("2006-01-02 15:04", fields[1]+" "+fields[2], time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse mailing list last_update %q: %w", fields[1]+" "+fields[2], err)
		}

		if i+2 >= len(lines) {
			return nil, fmt.Errorf("mailing list entry %q missing name/description lines", line)
		}
		nameLine := lines[i+1]
		name, err := extractAnchorName(nameLine)
		if err != nil {
			return nil, err
		}
		description := lines[i+2]

		items = append(items, loremodel.MailingList{
			Name:        name,
			Description: description,
			LastUpdate:  last,
		})
		i += 2
	}

	return items, nil
}

func extractAnchorName(line string) (string, error) {
	gt := strings.Index(line, ">")
	if gt < 0 {
		return "", fmt.Errorf("mailing list name line missing '>': %q", line)
	}
	rest := line[gt+1:]
	if end := strings.Index(rest, "</a>"); end >= 0 {
		return strings.TrimSpace(rest[:end]), nil
	}
	return strings.TrimSpace(rest), nil
}
