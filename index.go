package beanpipe

import "iter"

// LinkIndex maps a correlation-link identifier to the postings sharing it.
// Groups are kept in first-seen order, and postings within a group in
// whole-stream encounter order, so downstream processing is deterministic.
//
// A LinkIndex is ephemeral: it is built fresh per run and discarded once the
// matcher is done.
type LinkIndex struct {
	keys   []string
	groups map[string][]*Posting
}

// IndexLinks walks the stream once and gathers every posting carrying the
// reserved correlation-link metadata key into its group. Directives are never
// mutated. A transaction with no linked posting contributes nothing.
func IndexLinks(entries []Directive, linkKey string) *LinkIndex {
	ix := &LinkIndex{groups: make(map[string][]*Posting)}
	for _, e := range entries {
		txn, ok := e.(*Transaction)
		if !ok {
			continue
		}
		for _, p := range txn.Postings {
			id, ok := p.Meta.String(linkKey)
			if !ok || id == "" {
				continue
			}
			if _, seen := ix.groups[id]; !seen {
				ix.keys = append(ix.keys, id)
			}
			ix.groups[id] = append(ix.groups[id], p)
		}
	}
	return ix
}

// Len returns the number of correlation groups.
func (ix *LinkIndex) Len() int { return len(ix.keys) }

// Group returns the postings sharing a link id, in encounter order.
func (ix *LinkIndex) Group(id string) []*Posting { return ix.groups[id] }

// Groups iterates over the groups in first-seen order.
func (ix *LinkIndex) Groups() iter.Seq2[string, []*Posting] {
	return func(yield func(string, []*Posting) bool) {
		for _, k := range ix.keys {
			if !yield(k, ix.groups[k]) {
				return
			}
		}
	}
}
