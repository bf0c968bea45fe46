package beanpipe

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Metadata value types accepted by the schema.
const (
	TypeString  = "string"
	TypeInt     = "int"
	TypeBool    = "bool"
	TypeDate    = "date"
	TypeDecimal = "decimal"
)

// KeySpec describes one allowed metadata key.
type KeySpec struct {
	Description   string   `yaml:"description"`
	Type          string   `yaml:"type"`
	Required      bool     `yaml:"required"`
	AllowedValues []string `yaml:"allowed_values"`
	Pattern       string   `yaml:"pattern"` // regex, string values only
}

// ExceptionRule lets certain keys bypass schema validation, typically keys
// written by other plugins.
type ExceptionRule struct {
	AllowedPrefix string   `yaml:"allowed_prefix"`
	AllowedKeys   []string `yaml:"allowed_keys"`
}

// MetadataSchema is the typed metadata schema enforced by MetadataCheck,
// loaded from YAML.
type MetadataSchema struct {
	Metadata struct {
		Transaction      map[string]KeySpec `yaml:"transaction"`
		Posting          map[string]KeySpec `yaml:"posting"`
		Open             map[string]KeySpec `yaml:"open"`
		PluginExceptions []ExceptionRule    `yaml:"plugin_exceptions"`
	} `yaml:"metadata"`
}

// DecodeMetadataSchema reads a schema from YAML.
func DecodeMetadataSchema(r io.Reader) (*MetadataSchema, error) {
	var s MetadataSchema
	if err := yaml.NewDecoder(r).Decode(&s); err != nil {
		return nil, &ConfigError{Reason: "failed to load metadata schema", Err: err}
	}
	return &s, nil
}

// LoadMetadataSchema reads a schema from a YAML file. A missing file is a
// fatal *ConfigError.
func LoadMetadataSchema(path string) (*MetadataSchema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("metadata schema file %q not found", path), Err: err}
	}
	defer f.Close()
	return DecodeMetadataSchema(f)
}

// MetadataCheck validates metadata keys and values against a typed schema:
// key names per directive kind, value types, allowed values, and regex
// patterns for string values.
type MetadataCheck struct {
	schema          *MetadataSchema
	patterns        map[string]*regexp.Regexp // spec section+key -> compiled pattern
	allowedPrefixes []string
	exceptedKeys    map[string]bool
}

// NewMetadataCheck compiles the schema. Unknown value types and invalid
// patterns are fatal *ConfigError.
func NewMetadataCheck(schema *MetadataSchema) (*MetadataCheck, error) {
	c := &MetadataCheck{
		schema:       schema,
		patterns:     make(map[string]*regexp.Regexp),
		exceptedKeys: make(map[string]bool),
	}
	sections := map[string]map[string]KeySpec{
		"transaction": schema.Metadata.Transaction,
		"posting":     schema.Metadata.Posting,
		"open":        schema.Metadata.Open,
	}
	for section, specs := range sections {
		for key, spec := range specs {
			switch spec.Type {
			case "", TypeString, TypeInt, TypeBool, TypeDate, TypeDecimal:
			default:
				return nil, &ConfigError{Reason: fmt.Sprintf("metadata schema %s.%s: unknown type %q", section, key, spec.Type)}
			}
			if spec.Pattern != "" {
				re, err := regexp.Compile(spec.Pattern)
				if err != nil {
					return nil, &ConfigError{Reason: fmt.Sprintf("metadata schema %s.%s: invalid pattern", section, key), Err: err}
				}
				c.patterns[section+"."+key] = re
			}
		}
	}
	for _, rule := range schema.Metadata.PluginExceptions {
		if rule.AllowedPrefix != "" {
			c.allowedPrefixes = append(c.allowedPrefixes, rule.AllowedPrefix)
		}
		for _, k := range rule.AllowedKeys {
			c.exceptedKeys[k] = true
		}
	}
	return c, nil
}

// Name implements Plugin.
func (c *MetadataCheck) Name() string { return "check-valid-metadata" }

// Run implements Plugin. The stream is never modified.
func (c *MetadataCheck) Run(entries []Directive) ([]Directive, []Diagnostic, error) {
	var diags []Diagnostic
	for _, e := range entries {
		switch d := e.(type) {
		case *Transaction:
			diags = append(diags, c.checkMeta("transaction", c.schema.Metadata.Transaction, d.Meta, d, "")...)
			for _, p := range d.Postings {
				diags = append(diags, c.checkMeta("posting", c.schema.Metadata.Posting, p.Meta, d, p.Account)...)
			}
		case *Open:
			diags = append(diags, c.checkMeta("open", c.schema.Metadata.Open, d.Meta, nil, d.Account)...)
		}
	}
	return entries, diags, nil
}

func (c *MetadataCheck) excepted(key string) bool {
	if c.exceptedKeys[key] {
		return true
	}
	for _, prefix := range c.allowedPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

func (c *MetadataCheck) checkMeta(section string, specs map[string]KeySpec, meta Metadata, txn *Transaction, account string) []Diagnostic {
	var diags []Diagnostic
	report := func(format string, args ...any) {
		diags = append(diags, Diagnostic{
			Severity: Error,
			Kind:     InvalidMetadata,
			Message:  fmt.Sprintf(format, args...),
			Txn:      txn,
			Account:  account,
		})
	}

	for _, key := range meta.SortedKeys() {
		if c.excepted(key) {
			continue
		}
		spec, ok := specs[key]
		if !ok {
			report("invalid metadata key %q on %s", key, section)
			continue
		}
		value := meta[key]
		if spec.Type != "" && !typeMatches(spec.Type, value) {
			report("invalid value type %T for %s metadata %q, want %s", value, section, key, spec.Type)
			continue
		}
		if len(spec.AllowedValues) > 0 && !slices.Contains(spec.AllowedValues, valueString(value)) {
			report("invalid value %q for %s metadata %q (allowed: %s)",
				valueString(value), section, key, strings.Join(spec.AllowedValues, ", "))
			continue
		}
		if re := c.patterns[section+"."+key]; re != nil {
			if s, ok := value.(string); ok && !re.MatchString(s) {
				report("value %q for %s metadata %q does not match pattern %q", s, section, key, spec.Pattern)
			}
		}
	}

	// Sorted walk so repeated runs report missing keys in the same order.
	specKeys := make([]string, 0, len(specs))
	for key := range specs {
		specKeys = append(specKeys, key)
	}
	sort.Strings(specKeys)
	for _, key := range specKeys {
		if specs[key].Required && !meta.Has(key) {
			report("required %s metadata %q is missing", section, key)
		}
	}
	return diags
}

func typeMatches(typ string, value any) bool {
	switch typ {
	case TypeString:
		_, ok := value.(string)
		return ok
	case TypeBool:
		_, ok := value.(bool)
		return ok
	case TypeDecimal:
		_, ok := value.(decimal.Decimal)
		return ok
	case TypeInt:
		d, ok := value.(decimal.Decimal)
		return ok && d.IsInteger()
	case TypeDate:
		s, ok := value.(string)
		if !ok {
			return false
		}
		_, err := ParseDate(s)
		return err == nil
	default:
		return false
	}
}

func valueString(value any) string {
	switch t := value.(type) {
	case string:
		return t
	case decimal.Decimal:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(t)
	}
}
