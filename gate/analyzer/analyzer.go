// Lexical classification of inbound message text.
//
// Nothing here is semantic: checks are length, case-folded substring matching against a configured phrase list, and the share of characters which are neither letters nor numbers. All functions are pure.
package analyzer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type Kind int

const (
	Clean Kind = iota
	TooLong
	Forbidden
	HighEntropy
)

func (k Kind) String() string {
	switch k {
	case Clean:
		return "clean"
	case TooLong:
		return "too-long"
	case Forbidden:
		return "forbidden-keyword"
	case HighEntropy:
		return "high-entropy"
	default:
		return "unknown"
	}
}

type Config struct {
	// zero disables the length check
	MaxLength int
	// matched case-insensitively, in order; empty entries are skipped
	ForbiddenKeywords []string
	// zero disables the ratio check
	NonAlnumThreshold float64
	// also strip combining marks before keyword matching ("dévéloper" matches "developer")
	FoldDiacritics bool
}

type Result struct {
	Kind Kind
	// set for Forbidden: the configured phrase, as written in the config
	Keyword string
	// set for HighEntropy
	Ratio float64
	// message length in runes
	Length int
}

func (r Result) IsViolation() bool {
	return r.Kind != Clean
}

// Analyze runs the checks in priority order and returns the first match.
func Analyze(text string, cfg Config) Result {
	length := utf8.RuneCountInString(text)

	if cfg.MaxLength > 0 && length > cfg.MaxLength {
		return Result{Kind: TooLong, Length: length}
	}

	if kw := MatchKeyword(text, cfg.ForbiddenKeywords, cfg.FoldDiacritics); kw != "" {
		return Result{Kind: Forbidden, Keyword: kw, Length: length}
	}

	if cfg.NonAlnumThreshold > 0 {
		ratio := NonAlnumRatio(text)
		if ratio > cfg.NonAlnumThreshold {
			return Result{Kind: HighEntropy, Ratio: ratio, Length: length}
		}
	}

	return Result{Kind: Clean, Length: length}
}

// MatchKeyword returns the first phrase (in list order) which occurs anywhere in text, ignoring case, or the empty string.
func MatchKeyword(text string, phrases []string, foldDiacritics bool) string {
	if len(phrases) == 0 {
		return ""
	}
	// casers and transformers carry state, so they are not shared between calls
	caser := cases.Fold()
	normText := normalize(caser, text, foldDiacritics)
	for _, p := range phrases {
		if p == "" {
			continue
		}
		if strings.Contains(normText, normalize(caser, p, foldDiacritics)) {
			return p
		}
	}
	return ""
}

func normalize(caser cases.Caser, s string, foldDiacritics bool) string {
	s = caser.String(s)
	if !foldDiacritics {
		return s
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NonAlnumRatio is the share of runes in text that are neither letters nor numbers. Whitespace and punctuation both count. The empty string has ratio zero.
func NonAlnumRatio(text string) float64 {
	total := 0
	other := 0
	for _, r := range text {
		total++
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) {
			other++
		}
	}
	if total == 0 {
		total = 1
	}
	return float64(other) / float64(total)
}
