package beanpipe

import (
	"fmt"
	"strings"
)

// PostingTagsKey is the posting metadata key holding space-separated tag
// names to be promoted to the transaction level.
const PostingTagsKey = "tags"

// PostingTags promotes posting-level tags to the transaction level.
//
// Ledger formats usually only support tags at the transaction level, which is
// too coarse for split-purpose transactions (one leg for the house, one leg a
// gift). Postings may carry a "tags" metadata entry with space-separated tag
// names; this plugin unions them into the transaction tag set while keeping
// the metadata on each posting for per-posting association.
type PostingTags struct{}

// Name implements Plugin.
func (PostingTags) Name() string { return "posting-tags" }

// Run implements Plugin. A non-string "tags" value is reported as an error
// diagnostic and skipped.
func (PostingTags) Run(entries []Directive) ([]Directive, []Diagnostic, error) {
	var diags []Diagnostic
	for _, e := range entries {
		txn, ok := e.(*Transaction)
		if !ok {
			continue
		}
		for _, p := range txn.Postings {
			raw, ok := p.Meta[PostingTagsKey]
			if !ok {
				continue
			}
			s, ok := raw.(string)
			if !ok {
				diags = append(diags, Diagnostic{
					Severity: Error,
					Kind:     InvalidPostingTags,
					Message:  fmt.Sprintf("posting %q metadata must be a string, got %T", PostingTagsKey, raw),
					Txn:      txn,
					Account:  p.Account,
				})
				continue
			}
			for _, tag := range strings.Fields(s) {
				txn.Tags.Add(tag)
			}
		}
	}
	return entries, diags, nil
}
