package beanpipe

// USD is a helper for tests to create US dollar amounts from consts.
func USD(v float64) Amount { return A(v, "USD") }

// EUR is a helper for tests to create euro amounts from consts.
func EUR(v float64) Amount { return A(v, "EUR") }

// linked creates a posting carrying a correlation link under the default key.
func linked(account string, amount Amount, link string) *Posting {
	p := NewPosting(account, amount)
	p.Meta[DefaultLinkKey] = link
	return p
}

// txn creates a transaction on the given date with the given postings attached.
func txn(date, narration string, postings ...*Posting) *Transaction {
	t := NewTransaction(MustParseDate(date), "", narration)
	for _, p := range postings {
		t.AddPosting(p)
	}
	return t
}

// mustMatcher builds a matcher with default options, panicking on the
// impossible.
func mustMatcher() *Matcher {
	m, err := NewMatcher(DefaultMatcherOptions())
	if err != nil {
		panic(err.Error())
	}
	return m
}
