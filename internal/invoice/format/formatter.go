package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)

const DefaultTemplate = "{SEQ}"

// Formatter renders the display form of an invoice number. The stored
// number is always the plain integer; the template only affects output.
type Formatter struct {
	template string
}

// NewFormatter validates template against a sample number so a bad
// template fails at startup rather than per request.
func NewFormatter(template string) (*Formatter, error) {
	template = strings.TrimSpace(template)
	if template == "" {
		template = DefaultTemplate
	}
	if _, err := FormatInvoiceNumber(template, time.Unix(0, 0).UTC(), 1); err != nil {
		return nil, err
	}
	return &Formatter{template: template}, nil
}

func (f *Formatter) Format(issuedAt time.Time, seq int64) string {
	out, err := FormatInvoiceNumber(f.template, issuedAt, seq)
	if err != nil {
		return strconv.FormatInt(seq, 10)
	}
	return out
}

// FormatInvoiceNumber expands {YYYY} {YY} {MM} {DD} {SEQ} and {SEQn}
// (zero padded to n digits) in template.
func FormatInvoiceNumber(template string, issuedAt time.Time, seq int64) (string, error) {
	if template == "" {
		return "", fmt.Errorf("invoice number template is empty")
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}

	issuedAt = issuedAt.UTC()
	replacer := strings.NewReplacer(
		"{YYYY}", issuedAt.Format("2006"),
		"{YY}", issuedAt.Format("06"),
		"{MM}", issuedAt.Format("01"),
		"{DD}", issuedAt.Format("02"),
		"{SEQ}", strconv.FormatInt(seq, 10),
	)
	out := replacer.Replace(template)

	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		match := seqPadRe.FindStringSubmatch(m)
		width, err := strconv.Atoi(match[1])
		if err != nil || width <= 0 || width > 18 {
			return m
		}
		return fmt.Sprintf("%0*d", width, seq)
	})

	if strings.ContainsAny(out, "{}") {
		return "", fmt.Errorf("unresolved token in invoice format: %s", out)
	}
	return out, nil
}
