package beanpipe

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// TagExpectedKey is the Open directive metadata key marking an account whose
// transactions must carry at least one tag.
const TagExpectedKey = "tag-expected"

// TagsConfig is the controlled tag vocabulary used by ValidTags.
type TagsConfig struct {
	// Tags maps each allowed tag name to its description.
	Tags map[string]TagSpec `yaml:"tags"`
}

// TagSpec documents one allowed tag.
type TagSpec struct {
	Description string `yaml:"description"`
}

// Allowed returns the allowed tag names in lexical order.
func (c *TagsConfig) Allowed() []string {
	tags := make([]string, 0, len(c.Tags))
	for t := range c.Tags {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// DecodeTagsConfig reads a tag vocabulary from YAML.
func DecodeTagsConfig(r io.Reader) (*TagsConfig, error) {
	var c TagsConfig
	if err := yaml.NewDecoder(r).Decode(&c); err != nil {
		return nil, &ConfigError{Reason: "failed to load tags configuration", Err: err}
	}
	return &c, nil
}

// LoadTagsConfig reads a tag vocabulary from a YAML file. A missing file is a
// fatal *ConfigError: running the validator without its vocabulary is a setup
// mistake, not a ledger problem.
func LoadTagsConfig(path string) (*TagsConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("tags configuration file %q not found", path), Err: err}
	}
	defer f.Close()
	return DecodeTagsConfig(f)
}

// ValidTags validates every transaction tag against the allowed vocabulary,
// preventing typos and enforcing consistent tagging practices.
type ValidTags struct {
	allowed map[string]TagSpec
	names   []string // sorted, for diagnostics
}

// NewValidTags builds the validator from an explicit vocabulary.
func NewValidTags(cfg *TagsConfig) (*ValidTags, error) {
	if cfg == nil || cfg.Tags == nil {
		return nil, &ConfigError{Reason: "tags configuration has no tags section"}
	}
	return &ValidTags{allowed: cfg.Tags, names: cfg.Allowed()}, nil
}

// Name implements Plugin.
func (v *ValidTags) Name() string { return "check-valid-tags" }

// Run implements Plugin. The stream is never modified.
func (v *ValidTags) Run(entries []Directive) ([]Directive, []Diagnostic, error) {
	var diags []Diagnostic
	for _, e := range entries {
		txn, ok := e.(*Transaction)
		if !ok {
			continue
		}
		for _, tag := range txn.Tags.Sorted() {
			if _, ok := v.allowed[tag]; !ok {
				diags = append(diags, Diagnostic{
					Severity: Error,
					Kind:     InvalidTag,
					Message:  fmt.Sprintf("undefined tag '#%s' (allowed: %s)", tag, strings.Join(v.names, ", ")),
					Txn:      txn,
				})
			}
		}
	}
	return entries, diags, nil
}

// MissingTags flags untagged transactions that post to a tag-required
// account. Accounts opt in through `tag-expected: true` metadata on their
// Open directive.
type MissingTags struct{}

// Name implements Plugin.
func (MissingTags) Name() string { return "check-missing-tags" }

// Run implements Plugin. Phase 1 indexes the tag-required accounts from Open
// directives, phase 2 checks every untagged transaction's postings.
func (MissingTags) Run(entries []Directive) ([]Directive, []Diagnostic, error) {
	required := make(map[string]bool)
	for _, e := range entries {
		if open, ok := e.(*Open); ok {
			if expected, ok := open.Meta.Bool(TagExpectedKey); ok && expected {
				required[open.Account] = true
			}
		}
	}

	var diags []Diagnostic
	for _, e := range entries {
		txn, ok := e.(*Transaction)
		if !ok || len(txn.Tags) > 0 {
			continue
		}
		for _, p := range txn.Postings {
			if required[p.Account] {
				diags = append(diags, Diagnostic{
					Severity: Error,
					Kind:     MissingTag,
					Message:  fmt.Sprintf("posting to tag-required account %q missing tags: %s", p.Account, txn.Narration),
					Txn:      txn,
					Account:  p.Account,
				})
			}
		}
	}
	return entries, diags, nil
}
