package beanpipe

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// DirectiveKind is a typed string identifying the kind of a directive.
type DirectiveKind string

// Directive kinds used in data files.
const (
	KindTransaction DirectiveKind = "transaction"
	KindOpen        DirectiveKind = "open"
)

// Directive is the common interface of all dated ledger entries.
type Directive interface {
	What() DirectiveKind // What returns the kind of the directive.
	When() Date          // When returns the date on which the directive occurred.
}

// TagSet is a set of transaction tags.
type TagSet map[string]struct{}

// NewTagSet builds a set from the given tags.
func NewTagSet(tags ...string) TagSet {
	s := make(TagSet, len(tags))
	for _, t := range tags {
		s.Add(t)
	}
	return s
}

func (s TagSet) Add(tag string) { s[tag] = struct{}{} }

func (s TagSet) Has(tag string) bool {
	_, ok := s[tag]
	return ok
}

// Sorted returns the tags in lexical order.
func (s TagSet) Sorted() []string {
	tags := make([]string, 0, len(s))
	for t := range s {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// Union returns a new set with the elements of both sets.
func (s TagSet) Union(o TagSet) TagSet {
	u := make(TagSet, len(s)+len(o))
	for t := range s {
		u.Add(t)
	}
	for t := range o {
		u.Add(t)
	}
	return u
}

func (s TagSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *TagSet) UnmarshalJSON(data []byte) error {
	var tags []string
	if err := json.Unmarshal(data, &tags); err != nil {
		return err
	}
	*s = NewTagSet(tags...)
	return nil
}

// Posting is one leg of a Transaction: an account and an optional signed
// amount, with its own metadata. A posting belongs to exactly one Transaction
// and keeps a back-reference to it.
type Posting struct {
	Account string
	Amount  *Amount // nil for a balancing posting
	Meta    Metadata

	txn *Transaction
}

// NewPosting creates a posting with an amount.
func NewPosting(account string, amount Amount) *Posting {
	return &Posting{Account: account, Amount: &amount, Meta: Metadata{}}
}

// Txn returns the transaction owning this posting, nil if the posting was
// never attached.
func (p *Posting) Txn() *Transaction { return p.txn }

// HasAmount reports whether the posting carries an amount.
func (p *Posting) HasAmount() bool { return p.Amount != nil }

func (p *Posting) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("account", p.Account)
	if p.Amount != nil {
		w.EmbedFrom(p.Amount)
	}
	if len(p.Meta) > 0 {
		w.Append("meta", p.Meta)
	}
	return w.MarshalJSON()
}

func (p *Posting) UnmarshalJSON(data []byte) error {
	var temp struct {
		Account  string           `json:"account"`
		Amount   *json.RawMessage `json:"amount"`
		Currency string           `json:"currency"`
		Meta     Metadata         `json:"meta"`
	}
	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}
	p.Account = temp.Account
	p.Meta = temp.Meta
	if p.Meta == nil {
		p.Meta = Metadata{}
	}
	p.Amount = nil
	if temp.Amount != nil {
		var amountCmd struct {
			Amount   decimal.Decimal `json:"amount"`
			Currency string          `json:"currency"`
		}
		if err := json.Unmarshal(data, &amountCmd); err != nil {
			return err
		}
		a := A(amountCmd.Amount, amountCmd.Currency)
		p.Amount = &a
	}
	return nil
}

// Transaction is a dated directive with a narration, tags, and an ordered
// sequence of postings.
type Transaction struct {
	Date      Date
	Payee     string
	Narration string
	Tags      TagSet
	Meta      Metadata
	Postings  []*Posting
}

// NewTransaction creates an empty transaction on the given date.
func NewTransaction(date Date, payee, narration string) *Transaction {
	return &Transaction{
		Date:      date,
		Payee:     payee,
		Narration: narration,
		Tags:      TagSet{},
		Meta:      Metadata{},
	}
}

func (t *Transaction) What() DirectiveKind { return KindTransaction }
func (t *Transaction) When() Date          { return t.Date }

// AddPosting appends a posting to the transaction and sets its back-reference.
func (t *Transaction) AddPosting(p *Posting) *Transaction {
	p.txn = t
	if p.Meta == nil {
		p.Meta = Metadata{}
	}
	t.Postings = append(t.Postings, p)
	return t
}

// Ref returns a stable human-readable reference for the transaction: the "id"
// metadata entry when present, otherwise the date and narration.
func (t *Transaction) Ref() string {
	if id, ok := t.Meta.String("id"); ok && id != "" {
		return id
	}
	if t.Narration == "" {
		return t.Date.String()
	}
	return fmt.Sprintf("%s/%s", t.Date, t.Narration)
}

func (t *Transaction) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("directive", KindTransaction)
	w.Append("date", t.Date)
	w.Optional("payee", t.Payee)
	w.Optional("narration", t.Narration)
	if len(t.Tags) > 0 {
		w.Append("tags", t.Tags)
	}
	if len(t.Meta) > 0 {
		w.Append("meta", t.Meta)
	}
	w.Append("postings", t.Postings)
	return w.MarshalJSON()
}

func (t *Transaction) UnmarshalJSON(data []byte) error {
	var temp struct {
		Date      Date       `json:"date"`
		Payee     string     `json:"payee"`
		Narration string     `json:"narration"`
		Tags      TagSet     `json:"tags"`
		Meta      Metadata   `json:"meta"`
		Postings  []*Posting `json:"postings"`
	}
	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}
	t.Date = temp.Date
	t.Payee = temp.Payee
	t.Narration = temp.Narration
	t.Tags = temp.Tags
	if t.Tags == nil {
		t.Tags = TagSet{}
	}
	t.Meta = temp.Meta
	if t.Meta == nil {
		t.Meta = Metadata{}
	}
	t.Postings = nil
	for _, p := range temp.Postings {
		t.AddPosting(p)
	}
	return nil
}

// Open declares an account, optionally with metadata driving validation
// policies (e.g. tag-expected).
type Open struct {
	Date    Date
	Account string
	Meta    Metadata
}

func (o *Open) What() DirectiveKind { return KindOpen }
func (o *Open) When() Date          { return o.Date }

func (o *Open) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("directive", KindOpen)
	w.Append("date", o.Date)
	w.Append("account", o.Account)
	if len(o.Meta) > 0 {
		w.Append("meta", o.Meta)
	}
	return w.MarshalJSON()
}

func (o *Open) UnmarshalJSON(data []byte) error {
	var temp struct {
		Date    Date     `json:"date"`
		Account string   `json:"account"`
		Meta    Metadata `json:"meta"`
	}
	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}
	o.Date = temp.Date
	o.Account = temp.Account
	o.Meta = temp.Meta
	if o.Meta == nil {
		o.Meta = Metadata{}
	}
	return nil
}

// Leaf returns the last segment of a colon-separated account name.
func Leaf(account string) string {
	if i := strings.LastIndex(account, ":"); i >= 0 {
		return account[i+1:]
	}
	return account
}
