package beanpipe

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMatcher_PairGroup(t *testing.T) {
	checking := linked("Assets:Banking:Checking", USD(100), "zs-1")
	savings := linked("Assets:Savings", USD(-100), "zs-1")
	entries := []Directive{
		txn("2026-02-05", "incoming", checking),
		txn("2026-02-05", "outgoing", savings),
	}

	_, diags, err := mustMatcher().Resolve(entries)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("Resolve() diagnostics = %v, want none", diags)
	}

	id1, ok := checking.Meta.String(DefaultMatchIDKey)
	if !ok || id1 == "" {
		t.Fatalf("checking posting has no match id")
	}
	id2, _ := savings.Meta.String(DefaultMatchIDKey)
	if id1 != id2 {
		t.Errorf("match ids differ: %q vs %q", id1, id2)
	}

	if got, _ := checking.Meta.String(DefaultCounterpartAccountKey); got != "Assets:Savings" {
		t.Errorf("checking counterpart account = %q, want %q", got, "Assets:Savings")
	}
	if got, _ := savings.Meta.String(DefaultCounterpartAccountKey); got != "Assets:Banking:Checking" {
		t.Errorf("savings counterpart account = %q, want %q", got, "Assets:Banking:Checking")
	}
	if got, _ := checking.Meta.String(DefaultCounterpartRefKey); got != "2026-02-05/outgoing" {
		t.Errorf("checking counterpart ref = %q, want %q", got, "2026-02-05/outgoing")
	}
	if got, _ := checking.Meta.String(DefaultCounterpartDateKey); got != "2026-02-05" {
		t.Errorf("checking counterpart date = %q, want %q", got, "2026-02-05")
	}

	// Money flows out of Savings into Checking, both narrations agree.
	want := "Transfer from Savings to Checking"
	if got, _ := checking.Meta.String(DefaultNarrationKey); got != want {
		t.Errorf("checking narration = %q, want %q", got, want)
	}
	if got, _ := savings.Meta.String(DefaultNarrationKey); got != want {
		t.Errorf("savings narration = %q, want %q", got, want)
	}
}

func TestMatcher_PairGroup_Mismatch(t *testing.T) {
	testCases := []struct {
		name string
		a, b Amount
	}{
		{name: "amounts do not cancel", a: USD(100), b: USD(-50)},
		{name: "currencies differ", a: USD(100), b: EUR(-100)},
		{name: "same sign", a: USD(100), b: USD(100)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pa := linked("Assets:Checking", tc.a, "zs-1")
			pb := linked("Assets:Savings", tc.b, "zs-1")
			entries := []Directive{
				txn("2026-01-10", "a", pa),
				txn("2026-01-10", "b", pb),
			}

			_, diags, err := mustMatcher().Resolve(entries)
			if err != nil {
				t.Fatalf("Resolve() error: %v", err)
			}
			if len(diags) != 1 {
				t.Fatalf("Resolve() diagnostics = %v, want exactly one", diags)
			}
			if diags[0].Kind != AmountMismatch {
				t.Errorf("diagnostic kind = %q, want %q", diags[0].Kind, AmountMismatch)
			}
			if diags[0].Severity != Error {
				t.Errorf("diagnostic severity = %v, want %v", diags[0].Severity, Error)
			}
			if pa.Meta.Has(DefaultMatchIDKey) || pb.Meta.Has(DefaultMatchIDKey) {
				t.Errorf("mismatched postings must not be annotated")
			}
		})
	}
}

func TestMatcher_PairGroup_SameTransaction(t *testing.T) {
	pa := linked("Assets:Checking", USD(100), "zs-1")
	pb := linked("Assets:Savings", USD(-100), "zs-1")
	entries := []Directive{txn("2026-01-10", "internal", pa, pb)}

	_, diags, err := mustMatcher().Resolve(entries)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(diags) != 1 || diags[0].Kind != AmountMismatch {
		t.Fatalf("Resolve() diagnostics = %v, want one amount-mismatch", diags)
	}
	if pa.Meta.Has(DefaultMatchIDKey) {
		t.Errorf("same-transaction pair must not be annotated")
	}
}

func TestMatcher_PairGroup_Epsilon(t *testing.T) {
	pa := linked("Assets:Checking", USD(100), "zs-1")
	pb := linked("Assets:Savings", USD(-99.999), "zs-1")
	entries := []Directive{
		txn("2026-01-10", "a", pa),
		txn("2026-01-10", "b", pb),
	}

	opts := DefaultMatcherOptions()
	opts.Epsilon = decimal.RequireFromString("0.01")
	m, err := NewMatcher(opts)
	if err != nil {
		t.Fatalf("NewMatcher() error: %v", err)
	}

	_, diags, err := m.Resolve(entries)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("Resolve() diagnostics = %v, want none within epsilon", diags)
	}
	if !pa.Meta.Has(DefaultMatchIDKey) || !pb.Meta.Has(DefaultMatchIDKey) {
		t.Errorf("postings within epsilon must be matched")
	}
}

func TestMatcher_MultiGroup_GreedyPairs(t *testing.T) {
	// Four postings, two true transfers sharing one link key.
	out1 := linked("Assets:Checking", USD(-50), "zs-split")
	in1 := linked("Assets:Savings", USD(50), "zs-split")
	out2 := linked("Assets:Checking", USD(-50), "zs-split")
	in2 := linked("Assets:Broker", USD(50), "zs-split")
	entries := []Directive{
		txn("2026-03-01", "t1", out1),
		txn("2026-03-01", "t2", in1),
		txn("2026-03-02", "t3", out2),
		txn("2026-03-02", "t4", in2),
	}

	_, diags, err := mustMatcher().Resolve(entries)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("Resolve() diagnostics = %v, want none", diags)
	}

	// Earliest unmatched on each side: out1 pairs with in1, out2 with in2.
	if got, _ := out1.Meta.String(DefaultCounterpartAccountKey); got != "Assets:Savings" {
		t.Errorf("out1 counterpart = %q, want %q", got, "Assets:Savings")
	}
	if got, _ := out2.Meta.String(DefaultCounterpartAccountKey); got != "Assets:Broker" {
		t.Errorf("out2 counterpart = %q, want %q", got, "Assets:Broker")
	}

	id1, _ := out1.Meta.String(DefaultMatchIDKey)
	id2, _ := out2.Meta.String(DefaultMatchIDKey)
	if id1 == id2 {
		t.Errorf("distinct pairs share match id %q", id1)
	}
	if got, _ := in1.Meta.String(DefaultMatchIDKey); got != id1 {
		t.Errorf("in1 match id = %q, want %q", got, id1)
	}
}

func TestMatcher_MultiGroup_Ambiguous(t *testing.T) {
	// Amounts do not match exactly, so the greedy exact-match policy leaves
	// all three unresolved even though they cancel out as a whole.
	a := linked("Assets:Checking", USD(50), "zs-1")
	b := linked("Assets:Savings", USD(-30), "zs-1")
	c := linked("Assets:Broker", USD(-20), "zs-1")
	entries := []Directive{
		txn("2026-03-01", "a", a),
		txn("2026-03-01", "b", b),
		txn("2026-03-01", "c", c),
	}

	_, diags, err := mustMatcher().Resolve(entries)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(diags) != 1 {
		t.Fatalf("Resolve() diagnostics = %v, want exactly one", diags)
	}
	d := diags[0]
	if d.Kind != AmbiguousGroup || d.Severity != Error {
		t.Errorf("diagnostic = %v, want ambiguous-group error", d)
	}
	for _, account := range []string{"Assets:Checking", "Assets:Savings", "Assets:Broker"} {
		if !strings.Contains(d.Message, account) {
			t.Errorf("diagnostic message %q does not name %s", d.Message, account)
		}
	}
	for _, p := range []*Posting{a, b, c} {
		if p.Meta.Has(DefaultMatchIDKey) {
			t.Errorf("unresolved posting %s must not be annotated", p.Account)
		}
	}
}

func TestMatcher_MultiGroup_PartialResolution(t *testing.T) {
	// One exact pair resolves, the odd member is reported as leftover.
	out := linked("Assets:Checking", USD(-50), "zs-1")
	in := linked("Assets:Savings", USD(50), "zs-1")
	odd := linked("Assets:Broker", USD(25), "zs-1")
	entries := []Directive{
		txn("2026-03-01", "a", out),
		txn("2026-03-01", "b", in),
		txn("2026-03-01", "c", odd),
	}

	_, diags, err := mustMatcher().Resolve(entries)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if !out.Meta.Has(DefaultMatchIDKey) || !in.Meta.Has(DefaultMatchIDKey) {
		t.Errorf("exact pair must be matched")
	}
	if len(diags) != 1 || diags[0].Kind != AmbiguousGroup {
		t.Fatalf("Resolve() diagnostics = %v, want one ambiguous-group", diags)
	}
	if !strings.Contains(diags[0].Message, "Assets:Broker") {
		t.Errorf("diagnostic %q does not name leftover account", diags[0].Message)
	}
}

func TestMatcher_OrphanLink(t *testing.T) {
	p := linked("Assets:Checking", USD(100), "zs-alone")
	entries := []Directive{txn("2026-01-10", "alone", p)}

	_, diags, err := mustMatcher().Resolve(entries)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(diags) != 1 {
		t.Fatalf("Resolve() diagnostics = %v, want exactly one", diags)
	}
	if diags[0].Kind != OrphanLink || diags[0].Severity != Warning {
		t.Errorf("diagnostic = %v, want orphan-link warning", diags[0])
	}
	if p.Meta.Has(DefaultMatchIDKey) {
		t.Errorf("orphan posting must not be annotated")
	}
}

func TestMatcher_UnlinkedPostingIgnored(t *testing.T) {
	p := NewPosting("Expenses:Groceries", USD(42))
	entries := []Directive{txn("2026-01-10", "groceries", p)}

	_, diags, err := mustMatcher().Resolve(entries)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(diags) != 0 {
		t.Errorf("Resolve() diagnostics = %v, want none for unlinked postings", diags)
	}
	if len(p.Meta) != 0 {
		t.Errorf("unlinked posting metadata = %v, want untouched", p.Meta)
	}
}

func TestMatcher_Idempotent(t *testing.T) {
	build := func() []Directive {
		return []Directive{
			txn("2026-02-05", "in", linked("Assets:Checking", USD(100), "zs-1")),
			txn("2026-02-05", "out", linked("Assets:Savings", USD(-100), "zs-1")),
			txn("2026-02-06", "alone", linked("Assets:Broker", USD(7), "zs-2")),
		}
	}

	m := mustMatcher()
	entries, diags1, err := m.Resolve(build())
	if err != nil {
		t.Fatalf("first Resolve() error: %v", err)
	}

	var first bytes.Buffer
	if err := EncodeDirectives(&first, entries); err != nil {
		t.Fatalf("EncodeDirectives() error: %v", err)
	}

	entries, diags2, err := m.Resolve(entries)
	if err != nil {
		t.Fatalf("second Resolve() error: %v", err)
	}

	var second bytes.Buffer
	if err := EncodeDirectives(&second, entries); err != nil {
		t.Fatalf("EncodeDirectives() error: %v", err)
	}

	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Errorf("second run changed the annotated stream:\nfirst:  %s\nsecond: %s", first.Bytes(), second.Bytes())
	}
	// The matched group is settled: only the orphan warning repeats.
	if !reflect.DeepEqual(diagSummaries(diags1), diagSummaries(diags2)) {
		t.Errorf("diagnostics differ between runs: %v vs %v", diags1, diags2)
	}
}

func TestMatcher_IncrementalRun_DistinctMatchIDs(t *testing.T) {
	// A ledger annotated in place, then extended with a new transfer reusing
	// the same link id: the settled pair keeps its id and the new pair gets a
	// different one.
	out1 := linked("Assets:Checking", USD(-50), "zs-1")
	in1 := linked("Assets:Savings", USD(50), "zs-1")
	entries := []Directive{
		txn("2026-04-01", "t1", out1),
		txn("2026-04-01", "t2", in1),
	}

	m := mustMatcher()
	entries, diags, err := m.Resolve(entries)
	if err != nil {
		t.Fatalf("first Resolve() error: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("first Resolve() diagnostics = %v, want none", diags)
	}
	id1, _ := out1.Meta.String(DefaultMatchIDKey)

	out2 := linked("Assets:Checking", USD(-50), "zs-1")
	in2 := linked("Assets:Savings", USD(50), "zs-1")
	entries = append(entries,
		txn("2026-04-15", "t3", out2),
		txn("2026-04-15", "t4", in2),
	)

	_, diags, err = m.Resolve(entries)
	if err != nil {
		t.Fatalf("second Resolve() error: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("second Resolve() diagnostics = %v, want none", diags)
	}

	if got, _ := out1.Meta.String(DefaultMatchIDKey); got != id1 {
		t.Errorf("settled pair match id changed: %q vs %q", got, id1)
	}
	id2, ok := out2.Meta.String(DefaultMatchIDKey)
	if !ok {
		t.Fatalf("appended pair was not matched")
	}
	if id2 == id1 {
		t.Errorf("distinct pairs share match id %q after incremental run", id1)
	}
	if got, _ := in2.Meta.String(DefaultMatchIDKey); got != id2 {
		t.Errorf("in2 match id = %q, want %q", got, id2)
	}
}

func TestMatcher_Deterministic(t *testing.T) {
	run := func() (string, []Diagnostic) {
		entries := []Directive{
			txn("2026-03-01", "t1", linked("Assets:Checking", USD(-50), "zs-split")),
			txn("2026-03-01", "t2", linked("Assets:Savings", USD(50), "zs-split")),
			txn("2026-03-02", "t3", linked("Assets:Checking", USD(-50), "zs-split")),
			txn("2026-03-02", "t4", linked("Assets:Broker", USD(50), "zs-split")),
			txn("2026-03-03", "t5", linked("Assets:Other", USD(8), "zs-odd")),
		}
		entries, diags, err := mustMatcher().Resolve(entries)
		if err != nil {
			t.Fatalf("Resolve() error: %v", err)
		}
		var buf bytes.Buffer
		if err := EncodeDirectives(&buf, entries); err != nil {
			t.Fatalf("EncodeDirectives() error: %v", err)
		}
		return buf.String(), diags
	}

	out1, diags1 := run()
	out2, diags2 := run()
	if out1 != out2 {
		t.Errorf("output differs across runs:\n%s\nvs\n%s", out1, out2)
	}
	if !reflect.DeepEqual(diagSummaries(diags1), diagSummaries(diags2)) {
		t.Errorf("diagnostics differ across runs: %v vs %v", diags1, diags2)
	}
}

func TestMatcher_NeverOverwritesMetadata(t *testing.T) {
	checking := linked("Assets:Checking", USD(100), "zs-1")
	checking.Meta[DefaultNarrationKey] = "hand-written note"
	savings := linked("Assets:Savings", USD(-100), "zs-1")
	entries := []Directive{
		txn("2026-02-05", "in", checking),
		txn("2026-02-05", "out", savings),
	}

	if _, _, err := mustMatcher().Resolve(entries); err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if got, _ := checking.Meta.String(DefaultNarrationKey); got != "hand-written note" {
		t.Errorf("existing narration = %q, want preserved", got)
	}
	if !checking.Meta.Has(DefaultMatchIDKey) {
		t.Errorf("match id must still be written")
	}
}

func TestNewMatcher_ConfigErrors(t *testing.T) {
	testCases := []struct {
		name string
		mod  func(*MatcherOptions)
	}{
		{name: "empty link key", mod: func(o *MatcherOptions) { o.LinkKey = "" }},
		{name: "negative epsilon", mod: func(o *MatcherOptions) { o.Epsilon = decimal.RequireFromString("-0.01") }},
		{name: "empty metadata key", mod: func(o *MatcherOptions) { o.MatchIDKey = "" }},
		{name: "duplicate metadata key", mod: func(o *MatcherOptions) { o.NarrationKey = o.MatchIDKey }},
		{name: "metadata key equals link key", mod: func(o *MatcherOptions) { o.MatchIDKey = o.LinkKey }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultMatcherOptions()
			tc.mod(&opts)
			_, err := NewMatcher(opts)
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("NewMatcher() error = %v, want *ConfigError", err)
			}
		})
	}
}

func TestMatcher_FatalOnMalformedStream(t *testing.T) {
	t.Run("missing tagging step", func(t *testing.T) {
		opts := DefaultMatcherOptions()
		opts.RequireLinks = true
		m, err := NewMatcher(opts)
		if err != nil {
			t.Fatalf("NewMatcher() error: %v", err)
		}
		entries := []Directive{txn("2026-01-10", "plain", NewPosting("Expenses:Rent", USD(1000)))}
		_, _, err = m.Resolve(entries)
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("Resolve() error = %v, want *ConfigError", err)
		}
	})

	t.Run("linked posting without amount", func(t *testing.T) {
		p := &Posting{Account: "Assets:Checking", Meta: Metadata{DefaultLinkKey: "zs-1"}}
		entries := []Directive{txn("2026-01-10", "broken", p)}
		_, _, err := mustMatcher().Resolve(entries)
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("Resolve() error = %v, want *ConfigError", err)
		}
	})

	t.Run("first malformed group reported", func(t *testing.T) {
		// Two broken groups: the abort message always names the first-seen one.
		first := &Posting{Account: "Assets:First", Meta: Metadata{DefaultLinkKey: "zs-1"}}
		second := &Posting{Account: "Assets:Second", Meta: Metadata{DefaultLinkKey: "zs-2"}}
		entries := []Directive{
			txn("2026-01-10", "a", first),
			txn("2026-01-11", "b", second),
		}
		_, _, err := mustMatcher().Resolve(entries)
		if err == nil || !strings.Contains(err.Error(), "Assets:First") {
			t.Errorf("Resolve() error = %v, want it to name Assets:First", err)
		}
	})

	t.Run("posting not attached to a transaction", func(t *testing.T) {
		good := txn("2026-01-10", "ok")
		// Bypass AddPosting so the back-reference is never set.
		good.Postings = append(good.Postings, linked("Assets:Checking", USD(1), "zs-1"))
		_, _, err := mustMatcher().Resolve([]Directive{good})
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("Resolve() error = %v, want *ConfigError", err)
		}
	})
}

// diagSummaries projects diagnostics to comparable values (Txn pointers differ
// across otherwise identical runs).
func diagSummaries(diags []Diagnostic) []string {
	var out []string
	for _, d := range diags {
		out = append(out, d.String())
	}
	return out
}
