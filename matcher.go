package beanpipe

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Default metadata key names used by the matcher. All of them can be changed
// through MatcherOptions.
const (
	// DefaultLinkKey is the posting metadata key under which the upstream
	// tagger places the correlation-link identifier.
	DefaultLinkKey = "zerosum-link"

	DefaultMatchIDKey            = "match-id"
	DefaultCounterpartAccountKey = "counterpart-account"
	DefaultCounterpartRefKey     = "counterpart-txn"
	DefaultCounterpartDateKey    = "counterpart-date"
	DefaultNarrationKey          = "narration"
)

// matchNamespace seeds the name-based UUIDs used as match identifiers, so
// that the same pair always yields the same identifier across runs.
var matchNamespace = uuid.MustParse("9a3b52de-7c11-4f02-b6a8-50e14d83c7e9")

// MatcherOptions configures a Matcher. The zero value is not usable directly;
// use DefaultMatcherOptions and override what you need.
type MatcherOptions struct {
	// LinkKey is the posting metadata key carrying the correlation-link id.
	LinkKey string
	// Epsilon is the tolerance, in major units, for the amount-inverse check
	// on pair groups. Must not be negative.
	Epsilon decimal.Decimal
	// RequireLinks makes an entirely unlinked stream a fatal configuration
	// error, for hosts where the upstream tagging step is mandatory.
	RequireLinks bool

	// Metadata keys written on matched postings.
	MatchIDKey            string
	CounterpartAccountKey string
	CounterpartRefKey     string
	CounterpartDateKey    string
	NarrationKey          string
}

// DefaultMatcherOptions returns the options used by the bpipe tool: default
// key names, exact amount comparison, links optional.
func DefaultMatcherOptions() MatcherOptions {
	return MatcherOptions{
		LinkKey:               DefaultLinkKey,
		Epsilon:               decimal.Zero,
		MatchIDKey:            DefaultMatchIDKey,
		CounterpartAccountKey: DefaultCounterpartAccountKey,
		CounterpartRefKey:     DefaultCounterpartRefKey,
		CounterpartDateKey:    DefaultCounterpartDateKey,
		NarrationKey:          DefaultNarrationKey,
	}
}

// Matcher pairs the postings of each correlation group into transfers and
// annotates both sides of every pair with shared reconciliation metadata.
//
// Pairing within a group of more than two candidates is a stable greedy walk:
// postings of opposite sign whose absolute amounts match exactly are paired,
// earliest unmatched candidate first on each side. This avoids the
// combinatorial cost of optimal bipartite matching, at the cost of leaving a
// matchable pair unresolved when amounts are not unique within the group; see
// the matching docs topic for the full discussion of this limitation.
type Matcher struct {
	opts MatcherOptions
}

// NewMatcher validates the options and returns a ready Matcher. Invalid
// options are a fatal *ConfigError.
func NewMatcher(opts MatcherOptions) (*Matcher, error) {
	if opts.LinkKey == "" {
		return nil, &ConfigError{Reason: "matcher link key must not be empty"}
	}
	if opts.Epsilon.IsNegative() {
		return nil, &ConfigError{Reason: fmt.Sprintf("matcher epsilon must not be negative, got %s", opts.Epsilon)}
	}
	keys := []string{opts.MatchIDKey, opts.CounterpartAccountKey, opts.CounterpartRefKey, opts.CounterpartDateKey, opts.NarrationKey}
	seen := map[string]bool{opts.LinkKey: true}
	for _, k := range keys {
		if k == "" {
			return nil, &ConfigError{Reason: "matcher metadata keys must not be empty"}
		}
		if seen[k] {
			return nil, &ConfigError{Reason: fmt.Sprintf("matcher metadata key %q is used twice", k)}
		}
		seen[k] = true
	}
	return &Matcher{opts: opts}, nil
}

// Name implements Plugin.
func (m *Matcher) Name() string { return "zerosum-matcher" }

// Run implements Plugin.
func (m *Matcher) Run(entries []Directive) ([]Directive, []Diagnostic, error) {
	return m.Resolve(entries)
}

// Resolve indexes the stream by correlation link and resolves each group into
// matched transfers. The returned stream is the input stream: mutation is
// limited to adding new metadata keys on matched postings, existing keys are
// never overwritten. All malformed groups degrade to diagnostics; only a
// malformed stream structure or a missing mandatory tagging step aborts the
// run, before any annotation is written.
func (m *Matcher) Resolve(entries []Directive) ([]Directive, []Diagnostic, error) {
	ix := IndexLinks(entries, m.opts.LinkKey)

	// Fail fast on structural problems, before any metadata is written.
	if m.opts.RequireLinks && ix.Len() == 0 {
		return nil, nil, &ConfigError{Reason: fmt.Sprintf("no posting carries the %q link key, upstream tagging step missing", m.opts.LinkKey)}
	}
	for _, group := range ix.Groups() {
		for _, p := range group {
			if p.Txn() == nil {
				return nil, nil, &ConfigError{Reason: fmt.Sprintf("linked posting to %s is not attached to a transaction", p.Account)}
			}
			if !p.HasAmount() {
				return nil, nil, &ConfigError{Reason: fmt.Sprintf("linked posting to %s on %s has no amount", p.Account, p.Txn().Date)}
			}
		}
	}

	var diags []Diagnostic
	for id, group := range ix.Groups() {
		diags = append(diags, m.resolveGroup(id, group)...)
	}
	return entries, diags, nil
}

// resolveGroup runs the per-group state machine.
func (m *Matcher) resolveGroup(id string, group []*Posting) []Diagnostic {
	// Postings annotated by a previous run are settled: they are no longer
	// candidates, which makes re-resolution a no-op on matched groups.
	var candidates []*Posting
	for _, p := range group {
		if !p.Meta.Has(m.opts.MatchIDKey) {
			candidates = append(candidates, p)
		}
	}

	switch {
	case len(candidates) == 0:
		return nil
	case len(candidates) == 1:
		p := candidates[0]
		return []Diagnostic{{
			Severity: Warning,
			Kind:     OrphanLink,
			Message:  fmt.Sprintf("correlation group %q has a single unmatched member %s %s", id, p.Account, p.Amount),
			Txn:      p.Txn(),
			Account:  p.Account,
		}}
	case len(candidates) == 2:
		return m.resolvePair(id, candidates[0], candidates[1])
	default:
		return m.resolveMulti(id, candidates)
	}
}

// resolvePair handles a group of exactly two candidates: either they cancel
// out and become a match, or the group degrades to an amount-mismatch.
func (m *Matcher) resolvePair(id string, a, b *Posting) []Diagnostic {
	if a.Txn() == b.Txn() {
		return []Diagnostic{{
			Severity: Error,
			Kind:     AmountMismatch,
			Message:  fmt.Sprintf("correlation group %q: both postings (%s, %s) belong to the same transaction", id, a.Account, b.Account),
			Txn:      a.Txn(),
			Account:  a.Account,
		}}
	}
	if !a.Amount.InverseOf(*b.Amount, m.opts.Epsilon) {
		return []Diagnostic{{
			Severity: Error,
			Kind:     AmountMismatch,
			Message:  fmt.Sprintf("correlation group %q: amounts %s and %s do not cancel out", id, a.Amount, b.Amount),
			Txn:      a.Txn(),
			Account:  a.Account,
		}}
	}
	m.annotate(id, a, b)
	return nil
}

// resolveMulti pairs opposite-sign postings with exactly equal absolute
// amounts, earliest unmatched first. Leftovers are reported together as one
// ambiguous-group diagnostic.
func (m *Matcher) resolveMulti(id string, candidates []*Posting) []Diagnostic {
	var outbound, inbound []*Posting
	for _, p := range candidates {
		switch {
		case p.Amount.IsNegative():
			outbound = append(outbound, p)
		case p.Amount.IsPositive():
			inbound = append(inbound, p)
		}
	}

	paired := make(map[*Posting]bool)
	for _, out := range outbound {
		for _, in := range inbound {
			if paired[in] || in.Txn() == out.Txn() {
				continue
			}
			if in.Amount.Currency() != out.Amount.Currency() {
				continue
			}
			if !in.Amount.Value().Equal(out.Amount.Value().Neg()) {
				continue
			}
			m.annotate(id, out, in)
			paired[out], paired[in] = true, true
			break
		}
	}

	var leftovers []string
	var first *Posting
	for _, p := range candidates {
		if !paired[p] {
			if first == nil {
				first = p
			}
			leftovers = append(leftovers, fmt.Sprintf("%s %s", p.Account, p.Amount))
		}
	}
	if len(leftovers) == 0 {
		return nil
	}
	return []Diagnostic{{
		Severity: Error,
		Kind:     AmbiguousGroup,
		Message:  fmt.Sprintf("correlation group %q: %d posting(s) left unresolved after greedy matching: %s", id, len(leftovers), strings.Join(leftovers, ", ")),
		Txn:      first.Txn(),
		Account:  first.Account,
	}}
}

// annotate writes the shared reconciliation metadata on both sides of a pair.
func (m *Matcher) annotate(id string, a, b *Posting) {
	matchID := uuid.NewSHA1(matchNamespace, []byte(pairName(id, a, b))).String()
	m.writeMatch(a, b, matchID)
	m.writeMatch(b, a, matchID)
}

// pairName identifies a matched pair by its two sides. Seeding the match id
// with the pair identity keeps ids stable across runs and keeps them distinct
// when a later transfer reuses an already-settled link id.
func pairName(id string, a, b *Posting) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s", id,
		a.Txn().Ref(), a.Account, a.Amount.Value(),
		b.Txn().Ref(), b.Account, b.Amount.Value())
}

func (m *Matcher) writeMatch(p, counterpart *Posting, matchID string) {
	setIfAbsent(p.Meta, m.opts.MatchIDKey, matchID)
	setIfAbsent(p.Meta, m.opts.CounterpartAccountKey, counterpart.Account)
	setIfAbsent(p.Meta, m.opts.CounterpartRefKey, counterpart.Txn().Ref())
	setIfAbsent(p.Meta, m.opts.CounterpartDateKey, counterpart.Txn().Date.String())
	setIfAbsent(p.Meta, m.opts.NarrationKey, transferNarration(p, counterpart))
}

// setIfAbsent adds a metadata entry, never overwriting an existing key.
func setIfAbsent(meta Metadata, key string, value any) {
	if !meta.Has(key) {
		meta[key] = value
	}
}

// transferNarration builds a human-readable description of the transfer. The
// sign of the amount gives the direction: a negative amount means money
// leaving p's account.
func transferNarration(p, counterpart *Posting) string {
	if p.Amount.IsNegative() {
		return fmt.Sprintf("Transfer from %s to %s", Leaf(p.Account), Leaf(counterpart.Account))
	}
	return fmt.Sprintf("Transfer from %s to %s", Leaf(counterpart.Account), Leaf(p.Account))
}
