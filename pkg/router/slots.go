package router

import (
	"hash/fnv"
	"strings"

	"github.com/moonstream-to/moonlive/pkg/core"
)

// extractSlots finds every element carrying data-slot="id" and returns its
// inner content. Slots without markup go to text, the rest to markup.
// Nested elements of the same tag are matched by depth, so a slot's
// content runs to its own closing tag. Slots nested inside another slot
// are not reported separately.
func extractSlots(html string) (text, markup map[string]string) {
	text = make(map[string]string)
	markup = make(map[string]string)

	const marker = `data-slot="`
	n := len(html)
	pos := 0

	for pos < n {
		idx := strings.Index(html[pos:], marker)
		if idx == -1 {
			break
		}
		idStart := pos + idx + len(marker)

		idLen := strings.IndexByte(html[idStart:], '"')
		if idLen == -1 {
			break
		}
		id := html[idStart : idStart+idLen]

		tagStart := pos + idx
		for tagStart > 0 && html[tagStart] != '<' {
			tagStart--
		}
		nameEnd := tagStart + 1
		for nameEnd < n && !isTagNameEnd(html[nameEnd]) {
			nameEnd++
		}
		tag := html[tagStart+1 : nameEnd]

		gt := strings.IndexByte(html[idStart+idLen:], '>')
		if gt == -1 {
			break
		}
		contentStart := idStart + idLen + gt + 1

		contentEnd, next := matchClose(html, tag, contentStart)
		if contentEnd == -1 {
			pos = contentStart
			continue
		}

		content := strings.TrimSpace(html[contentStart:contentEnd])
		if strings.ContainsAny(content, "<>") {
			markup[id] = content
		} else {
			text[id] = content
		}
		pos = next
	}

	return text, markup
}

// matchClose returns the offset of the closing tag that balances an open
// tag whose content starts at from, and the offset just past it.
func matchClose(html, tag string, from int) (end, next int) {
	open := "<" + tag
	closing := "</" + tag
	n := len(html)
	depth := 1
	pos := from

	for pos < n {
		c := strings.Index(html[pos:], closing)
		if c == -1 {
			return -1, n
		}
		c += pos

		o := strings.Index(html[pos:c], open)
		if o != -1 {
			o += pos
			after := o + len(open)
			if after < n && isTagNameEnd(html[after]) {
				depth++
			}
			pos = after
			continue
		}

		depth--
		if depth == 0 {
			return c, c + len(closing)
		}
		pos = c + len(closing)
	}
	return -1, n
}

func isTagNameEnd(b byte) bool {
	switch b {
	case ' ', '>', '/', '\t', '\n', '\r':
		return true
	}
	return false
}

func hashSlot(content string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(content))
	return h.Sum64()
}

// wholeView keys the hash of a render that has no slots.
const wholeView = ""

func hashSlots(html string, text, markup map[string]string) map[string]uint64 {
	hashes := make(map[string]uint64, len(text)+len(markup))
	for id, c := range text {
		hashes[id] = hashSlot(c)
	}
	for id, c := range markup {
		hashes[id] = hashSlot(c)
	}
	if len(hashes) == 0 {
		hashes[wholeView] = hashSlot(html)
	}
	return hashes
}

// buildDiff compares a fresh render with the hashes the client last saw.
// A view without slots is sent whole.
func buildDiff(session *LiveSession, html string) *core.DiffPayload {
	text, markup := extractSlots(html)
	hashes := hashSlots(html, text, markup)
	prev := session.swapSlotHashes(hashes)

	d := &core.DiffPayload{
		Slots:     make(map[string]string),
		HTMLSlots: make(map[string]string),
	}

	if _, whole := hashes[wholeView]; whole {
		if prev[wholeView] != hashes[wholeView] {
			d.Full = html
		}
	} else {
		for id, c := range text {
			if prev[id] != hashes[id] {
				d.Slots[id] = c
			}
		}
		for id, c := range markup {
			if prev[id] != hashes[id] {
				d.HTMLSlots[id] = c
			}
		}
	}

	if !d.IsEmpty() {
		d.Version = session.nextVersion()
	}
	return d
}

// seedSlots records what the client received in the join reply so the
// first diff only carries what changed after it.
func seedSlots(session *LiveSession, html string) {
	text, markup := extractSlots(html)
	session.swapSlotHashes(hashSlots(html, text, markup))
}
