package beanpipe

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// DecodeDirectives decodes a stream of JSONL data: one directive per line,
// identified by its "directive" field. Empty lines are skipped. The returned
// slice preserves the source order; postings are attached to their
// transactions.
func DecodeDirectives(r io.Reader) ([]Directive, error) {
	var entries []Directive
	scanner := bufio.NewScanner(r)

	line := 0
	for scanner.Scan() {
		line++
		lineBytes := scanner.Bytes()
		if len(lineBytes) == 0 {
			continue
		}

		var identifier struct {
			Directive DirectiveKind `json:"directive"`
		}
		if err := json.Unmarshal(lineBytes, &identifier); err != nil {
			return nil, fmt.Errorf("line %d: could not identify directive: %w", line, err)
		}

		var d Directive
		switch identifier.Directive {
		case KindTransaction:
			d = &Transaction{}
		case KindOpen:
			d = &Open{}
		default:
			return nil, fmt.Errorf("line %d: unknown directive kind %q", line, identifier.Directive)
		}
		if err := json.Unmarshal(lineBytes, d); err != nil {
			return nil, fmt.Errorf("line %d: could not decode %s: %w", line, identifier.Directive, err)
		}
		entries = append(entries, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("could not read directives: %w", err)
	}
	return entries, nil
}

// EncodeDirectives writes the directives as JSONL, one per line, in stream
// order. Field order and metadata key order are stable, so encoding the same
// stream twice yields identical bytes.
func EncodeDirectives(w io.Writer, entries []Directive) error {
	for _, e := range entries {
		if err := EncodeDirective(w, e); err != nil {
			return err
		}
	}
	return nil
}

// EncodeDirective writes a single directive as one JSONL line.
func EncodeDirective(w io.Writer, e Directive) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("could not encode %s on %s: %w", e.What(), e.When(), err)
	}
	if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
		return fmt.Errorf("could not write directive: %w", err)
	}
	return nil
}
