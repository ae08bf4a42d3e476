// Package textprep normalizes and sanitizes regulatory text before it is
// sent to the model: encoding cleanup, optional PII redaction, and a
// minimum-length gate.
package textprep

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrInsufficientText is returned when the cleaned text is shorter than the
// configured minimum. Document-level fatal: nothing should be persisted.
var ErrInsufficientText = eris.New("textprep: insufficient text after cleaning")

// Result is the outcome of preparing a document's raw text.
type Result struct {
	Text            string
	Redacted        bool
	RedactionCount  int
	RedactionCounts map[string]int
}

// Preparator cleans raw document text.
type Preparator struct {
	minLength int
}

// New creates a Preparator with the given minimum cleaned-text length.
func New(minLength int) *Preparator {
	if minLength <= 0 {
		minLength = 50
	}
	return &Preparator{minLength: minLength}
}

// mojibake maps common UTF-8-read-as-Latin-1 sequences back to the intended
// character. Regulatory sources frequently round-trip through legacy
// encodings.
var mojibake = strings.NewReplacer(
	"Â£", "£",
	"â‚¬", "€",
	"â€™", "'",
	"â€˜", "'",
	"â€œ", "“",
	"â€", "”",
	"â€“", "–",
	"â€”", "—",
	"Â ", " ",
)

// stripControls removes control characters other than newline and tab.
var stripControls = runes.Remove(runes.Predicate(func(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t'
}))

// PII detection patterns, by redaction category.
var piiPatterns = []struct {
	category string
	re       *regexp.Regexp
}{
	{"email", regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
	{"phone", regexp.MustCompile(`(?:\+?\d{1,3}[\s\-]?)?(?:\(\d{2,5}\)[\s\-]?)?\d{3,5}[\s\-]\d{3,6}\b`)},
	{"passport", regexp.MustCompile(`\b[A-Z]{1,2}\d{7,9}\b`)},
	{"national_insurance", regexp.MustCompile(`\b[A-CEGHJ-PR-TW-Z]{2}\s?\d{2}\s?\d{2}\s?\d{2}\s?[A-D]\b`)},
	{"date_of_birth", regexp.MustCompile(`(?i)\b(?:born|d\.?o\.?b\.?)[:\s]+\d{1,2}[/\-\.]\d{1,2}[/\-\.]\d{2,4}`)},
}

// Prepare normalizes encoding, optionally redacts personal data, and
// enforces the minimum length. Returns ErrInsufficientText when the cleaned
// text is too short.
func (p *Preparator) Prepare(raw string, redact bool) (*Result, error) {
	text := Normalize(raw)

	res := &Result{Text: text, RedactionCounts: map[string]int{}}
	if redact {
		res.Text, res.RedactionCounts = Redact(text)
		for _, n := range res.RedactionCounts {
			res.RedactionCount += n
		}
		res.Redacted = res.RedactionCount > 0
	}

	if len(strings.TrimSpace(res.Text)) < p.minLength {
		return nil, eris.Wrapf(ErrInsufficientText, "got %d chars, need %d",
			len(strings.TrimSpace(res.Text)), p.minLength)
	}

	return res, nil
}

// Normalize applies NFC normalization, repairs common mojibake, strips
// control characters, and collapses runs of blank lines.
func Normalize(raw string) string {
	text := mojibake.Replace(raw)
	out, _, err := transform.String(transform.Chain(norm.NFC, stripControls), text)
	if err != nil {
		// Transform failure leaves the replaced text usable as-is.
		out = text
	}

	// Collapse 3+ consecutive newlines to a paragraph break.
	for strings.Contains(out, "\n\n\n") {
		out = strings.ReplaceAll(out, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(out)
}

// Redact replaces detected personal-data spans with category markers and
// returns the per-category counts.
func Redact(text string) (string, map[string]int) {
	counts := map[string]int{}
	for _, p := range piiPatterns {
		text = p.re.ReplaceAllStringFunc(text, func(string) string {
			counts[p.category]++
			return fmt.Sprintf("[REDACTED:%s]", p.category)
		})
	}
	return text, counts
}
