// Package address normalizes free-form street addresses for dedup keys and
// assessor searches.
package address

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// suffixAbbr maps long street suffixes to their postal abbreviations.
var suffixAbbr = map[string]string{
	"avenue":    "Ave",
	"boulevard": "Blvd",
	"circle":    "Cir",
	"court":     "Ct",
	"drive":     "Dr",
	"lane":      "Ln",
	"place":     "Pl",
	"road":      "Rd",
	"street":    "St",
	"way":       "Way",
}

var (
	leadingNumber = regexp.MustCompile(`^\d+[\s-]*`)
	multiSpace    = regexp.MustCompile(`\s+`)
	titler        = cases.Title(language.AmericanEnglish)
)

// AbbreviateStreet shortens long street suffixes in the street portion of an
// address ("Westchester Farm Drive" -> "Westchester Farm Dr"). Only the part
// before the first comma is considered.
func AbbreviateStreet(addr string) string {
	street, _, _ := strings.Cut(addr, ",")
	street = strings.TrimSpace(street)
	if street == "" {
		return ""
	}
	words := strings.Fields(street)
	for i, w := range words {
		if abbr, ok := suffixAbbr[strings.ToLower(w)]; ok {
			words[i] = abbr
		}
	}
	return strings.Join(words, " ")
}

// StreetName strips the leading house number from an address and returns the
// street portion, the form the assessor search endpoint expects.
func StreetName(addr string) string {
	street, _, _ := strings.Cut(addr, ",")
	return strings.TrimSpace(leadingNumber.ReplaceAllString(street, ""))
}

// Normalize produces the canonical dedup key for a full address: collapsed
// whitespace, title-cased words, abbreviated street suffixes, comma-separated
// segments preserved. Two inputs that normalize equal are the same parcel for
// dedup purposes.
func Normalize(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	segments := strings.Split(addr, ",")
	out := make([]string, 0, len(segments))
	for i, seg := range segments {
		seg = multiSpace.ReplaceAllString(strings.TrimSpace(seg), " ")
		if seg == "" {
			continue
		}
		if i == 0 {
			seg = AbbreviateStreet(titler.String(seg))
		} else if isStateZip(seg) {
			seg = strings.ToUpper(seg)
		} else {
			seg = titler.String(seg)
		}
		out = append(out, seg)
	}
	return strings.Join(out, ", ")
}

// isStateZip matches segments like "MO 63304" or a bare two-letter state.
var stateZip = regexp.MustCompile(`(?i)^[a-z]{2}(\s+\d{5}(-\d{4})?)?$`)

func isStateZip(seg string) bool {
	return stateZip.MatchString(seg)
}
