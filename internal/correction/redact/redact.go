// Package redact scrubs personally identifying substrings from plain text
// before it leaves the service.
//
// Rules run in a fixed order (names, emails, phone numbers, IBANs) and each
// rule sees the output of the previous one, so a replacement token can never
// be matched again by a later rule.
package redact

import (
	"regexp"
)

// Replacement tokens.
const (
	TokenName  = "[name]"
	TokenEmail = "[email]"
	TokenPhone = "[phone]"
	TokenIBAN  = "[IBAN]"
)

const (
	upper = `A-ZÀÂÄÇÉÈÊËÎÏÔÖÙÛÜŸ`
	lower = `a-zàâäçéèêëîïôöùûüÿœæ`
	word  = `[` + upper + `][` + lower + `]+(?:-[` + upper + `][` + lower + `]+)?`
)

// Rule is one pattern and the text that replaces each match. Template may
// reference capture groups ($1).
type Rule struct {
	Name     string
	Pattern  *regexp.Regexp
	Template string
}

// Report counts matches per rule name for one Apply call.
type Report map[string]int

// Total returns the number of replacements across all rules.
func (r Report) Total() int {
	n := 0
	for _, c := range r {
		n += c
	}
	return n
}

// Redactor applies an ordered list of rules.
type Redactor struct {
	rules []Rule
}

// DefaultRules returns the rule set in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{
			// honorific kept, one or two capitalised name words replaced
			Name:     "name",
			Pattern:  regexp.MustCompile(`\b((?i:Monsieur|Madame|Mlle|Mme|Mr|M\.))\s+` + word + `(?:\s+` + word + `)?`),
			Template: "${1} " + TokenName,
		},
		{
			Name:     "email",
			Pattern:  regexp.MustCompile(`\b[a-zA-Z0-9_.+\-]+@[a-zA-Z0-9\-]+\.[a-zA-Z0-9.\-]+\b`),
			Template: TokenEmail,
		},
		{
			Name:     "phone",
			Pattern:  regexp.MustCompile(`\b0[1-9](?:[\s.\-]?\d{2}){4}\b`),
			Template: TokenPhone,
		},
		{
			Name:     "iban",
			Pattern:  regexp.MustCompile(`\b[A-Z]{2}\d{2}\s?[\w\s]{4,30}\b`),
			Template: TokenIBAN,
		},
	}
}

// New returns a Redactor over rules; nil means DefaultRules.
func New(rules []Rule) *Redactor {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Redactor{rules: rules}
}

// Apply runs every rule in order and reports how many substrings each replaced.
func (r *Redactor) Apply(text string) (string, Report) {
	report := make(Report, len(r.rules))
	for _, rule := range r.rules {
		report[rule.Name] = len(rule.Pattern.FindAllStringIndex(text, -1))
		text = rule.Pattern.ReplaceAllString(text, rule.Template)
	}
	return text, report
}

var defaultRedactor = New(nil)

// Redact scrubs text with the default rules.
func Redact(text string) string {
	out, _ := defaultRedactor.Apply(text)
	return out
}
