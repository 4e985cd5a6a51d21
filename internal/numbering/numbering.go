// Package numbering formats and advances invoice numbers of the form
// PREFIX/FISCAL-YEAR/00001.
package numbering

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultPrefix is the shop code printed on every invoice.
	DefaultPrefix = "MPK"
	// DefaultFiscalYear is used until a fiscal year is configured.
	DefaultFiscalYear = "25-26"
	// SequenceWidth is the zero-padded width of the trailing sequence.
	SequenceWidth = 5
)

var trailingDigits = regexp.MustCompile(`(\d+)$`)

// Scheme is the invoice number layout.
type Scheme struct {
	Prefix     string
	FiscalYear string
}

// DefaultScheme returns MPK/25-26.
func DefaultScheme() Scheme {
	return Scheme{Prefix: DefaultPrefix, FiscalYear: DefaultFiscalYear}
}

// NewScheme builds a scheme from configuration. fiscalYear "auto" derives the
// Indian April to March fiscal year from now; blank values fall back to the
// defaults.
func NewScheme(prefix, fiscalYear string, now time.Time) Scheme {
	s := DefaultScheme()
	if p := strings.TrimSpace(prefix); p != "" {
		s.Prefix = p
	}
	switch fy := strings.TrimSpace(fiscalYear); {
	case strings.EqualFold(fy, "auto"):
		s.FiscalYear = FiscalYearFor(now)
	case fy != "":
		s.FiscalYear = fy
	}
	return s
}

// FiscalYearFor returns the "YY-YY" fiscal year containing t. Fiscal years
// start on 1 April.
func FiscalYearFor(t time.Time) string {
	start := t.Year()
	if t.Month() < time.April {
		start--
	}
	return fmt.Sprintf("%02d-%02d", start%100, (start+1)%100)
}

// LeadingPart returns "PREFIX/FY/", the part shared by every number in the scheme.
func (s Scheme) LeadingPart() string {
	return s.Prefix + "/" + s.FiscalYear + "/"
}

// Format renders seq inside the scheme.
func (s Scheme) Format(seq int) string {
	return s.LeadingPart() + pad(seq)
}

// First returns the number that opens the sequence.
func (s Scheme) First() string {
	return s.Format(1)
}

// Next returns the number following last. An empty last, or one without a
// trailing numeric suffix, starts the sequence at 00001.
func (s Scheme) Next(last string) string {
	seq, ok := Sequence(last)
	if !ok {
		return s.First()
	}
	return s.Format(seq + 1)
}

// Sequence extracts the trailing numeric suffix of number.
func Sequence(number string) (int, bool) {
	m := trailingDigits.FindStringSubmatch(strings.TrimSpace(number))
	if m == nil {
		return 0, false
	}
	seq, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return seq, true
}

// NextKeepingYear advances last while preserving the fiscal year segment it
// was issued under. It is what the offline fallback uses, since the cached
// number is the best knowledge of the server's current year.
func (s Scheme) NextKeepingYear(last string) (string, bool) {
	seq, ok := Sequence(last)
	if !ok {
		return "", false
	}
	year := s.FiscalYear
	if parts := strings.Split(strings.TrimSpace(last), "/"); len(parts) >= 3 && parts[1] != "" {
		year = parts[1]
	}
	return Scheme{Prefix: s.Prefix, FiscalYear: year}.Format(seq + 1), true
}

func pad(seq int) string {
	if seq < 0 {
		seq = 0
	}
	return fmt.Sprintf("%0*d", SequenceWidth, seq)
}
