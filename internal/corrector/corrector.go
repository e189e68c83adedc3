// Package corrector rewrites recognised text using a user-maintained
// dictionary of corrections. Speech models consistently mishear the same
// technical terms ("pie torche" for "PyTorch"); the dictionary lets the user
// fix each mistake once instead of after every dictation.
//
// Matching is case-insensitive on the pattern and literal on the
// replacement. The scanner walks the text left to right and at each position
// applies the longest matching pattern; ties go to the rule that appears
// first in the dictionary file. Matches never overlap: the scanner resumes
// after the replaced span.
package corrector

import (
	"sort"
	"sync/atomic"
	"unicode"
)

// Rule is one correction: a pattern to recognise and the text to put in its
// place.
type Rule struct {
	Pattern     string
	Replacement string

	// pattern lowered rune by rune, precomputed at dictionary build time.
	lower []rune
}

// Dictionary is an immutable, ordered set of correction rules. Build one
// with NewDictionary and swap it atomically through a Corrector; never
// mutate a dictionary that a session may be reading.
type Dictionary struct {
	// rules ordered longest pattern first; among equal lengths, file order.
	rules []Rule
}

// NewDictionary builds a dictionary from rules in file order. Rules with an
// empty pattern are dropped.
func NewDictionary(rules []Rule) *Dictionary {
	kept := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Pattern == "" {
			continue
		}
		r.lower = lowerRunes([]rune(r.Pattern))
		kept = append(kept, r)
	}
	// Stable sort keeps file order among patterns of the same length, which
	// is what breaks ties during matching.
	sort.SliceStable(kept, func(i, j int) bool {
		return len(kept[i].lower) > len(kept[j].lower)
	})
	return &Dictionary{rules: kept}
}

// Len reports the number of active rules.
func (d *Dictionary) Len() int {
	return len(d.rules)
}

// Apply returns text with every correction applied.
func (d *Dictionary) Apply(text string) string {
	if len(d.rules) == 0 || text == "" {
		return text
	}

	src := []rune(text)
	low := lowerRunes(src)

	out := make([]rune, 0, len(src))
	for i := 0; i < len(src); {
		rule, ok := d.matchAt(low, i)
		if !ok {
			out = append(out, src[i])
			i++
			continue
		}
		out = append(out, []rune(rule.Replacement)...)
		i += len(rule.lower)
	}
	return string(out)
}

// matchAt returns the winning rule at position i, if any. Rules are already
// ordered longest first with file order breaking ties, so the first hit wins.
func (d *Dictionary) matchAt(low []rune, i int) (Rule, bool) {
	for _, r := range d.rules {
		n := len(r.lower)
		if i+n > len(low) {
			continue
		}
		if runesEqual(low[i:i+n], r.lower) {
			return r, true
		}
	}
	return Rule{}, false
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func lowerRunes(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return out
}

// Corrector hands out dictionary snapshots. A session takes one snapshot
// when its transcript arrives and uses it for the whole resolution, so a
// reload mid-session never mixes old and new rules.
type Corrector struct {
	dict atomic.Pointer[Dictionary]
}

// New creates a Corrector with the given initial dictionary. A nil dict
// starts empty.
func New(dict *Dictionary) *Corrector {
	c := &Corrector{}
	if dict == nil {
		dict = NewDictionary(nil)
	}
	c.dict.Store(dict)
	return c
}

// Snapshot returns the current dictionary. The returned value is immutable.
func (c *Corrector) Snapshot() *Dictionary {
	return c.dict.Load()
}

// Replace atomically swaps in a new dictionary. Sessions already holding a
// snapshot keep the old one.
func (c *Corrector) Replace(dict *Dictionary) {
	if dict == nil {
		dict = NewDictionary(nil)
	}
	c.dict.Store(dict)
}
