// Package textutil provides Unicode token predicates used during evaluation
// and feature extraction. Results are memoized per token since treebanks
// repeat a small vocabulary many times.
package textutil

import (
	"sync"
	"unicode"

	"golang.org/x/text/width"
)

// memo is a bounded token -> bool cache. Entries are dropped wholesale when
// the cache fills; treebank vocabularies are small enough that this almost
// never happens mid-run.
type memo struct {
	mu    sync.Mutex
	vals  map[string]bool
	limit int
}

func newMemo(limit int) *memo {
	return &memo{vals: make(map[string]bool), limit: limit}
}

func (m *memo) get(token string, compute func(string) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.vals[token]; ok {
		return v
	}
	if len(m.vals) >= m.limit {
		m.vals = make(map[string]bool)
	}
	v := compute(token)
	m.vals[token] = v
	return v
}

var (
	punctMemo     = newMemo(1024)
	fullwidthMemo = newMemo(1024)
	latinMemo     = newMemo(1024)
	digitMemo     = newMemo(1024)
)

func all(token string, pred func(rune) bool) bool {
	if token == "" {
		return false
	}
	for _, r := range token {
		if !pred(r) {
			return false
		}
	}
	return true
}

// IsPunct reports whether every rune of the token is Unicode punctuation.
// Evaluation conventionally skips such tokens when scoring attachment
// accuracy.
func IsPunct(token string) bool {
	return punctMemo.get(token, func(s string) bool {
		return all(s, unicode.IsPunct)
	})
}

// IsFullwidth reports whether every rune of the token is East Asian wide,
// fullwidth or ambiguous.
func IsFullwidth(token string) bool {
	return fullwidthMemo.get(token, func(s string) bool {
		return all(s, func(r rune) bool {
			switch width.LookupRune(r).Kind() {
			case width.EastAsianWide, width.EastAsianFullwidth, width.EastAsianAmbiguous:
				return true
			}
			return false
		})
	})
}

// IsLatin reports whether every rune of the token belongs to the Latin
// script.
func IsLatin(token string) bool {
	return latinMemo.get(token, func(s string) bool {
		return all(s, func(r rune) bool { return unicode.Is(unicode.Latin, r) })
	})
}

// IsDigit reports whether every rune of the token is a decimal digit.
func IsDigit(token string) bool {
	return digitMemo.get(token, func(s string) bool {
		return all(s, unicode.IsDigit)
	})
}

// ToHalfwidth folds fullwidth and halfwidth variants to their narrow form.
func ToHalfwidth(token string) string {
	return width.Narrow.String(token)
}
