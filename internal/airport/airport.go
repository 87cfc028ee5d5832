// Package airport turns free-text origins and destinations into IATA codes.
//
// Normalisation runs in four steps:
//
//  1. An exact, case-insensitive lookup in the city table, so listed
//     abbreviations such as "nyc" map to their airport.
//  2. A three-letter alphabetic input is taken to be a code already and is
//     upper-cased.
//  3. A fuzzy lookup against the same table. Double Metaphone codes of the
//     input must overlap those of a city and the full-string Jaro-Winkler
//     similarity must reach the phonetic threshold; without phonetic overlap
//     the stricter fuzzy threshold applies. This absorbs typos such as
//     "Pariss" or "San Fransisco".
//  4. Otherwise the first three letters, upper-cased.
package airport

import (
	"cmp"
	"slices"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.88
	defaultFuzzyThreshold    = 0.93
)

// DefaultCities maps lower-case city names and common abbreviations to the
// main airport of that city.
var DefaultCities = map[string]string{
	"new york":      "JFK",
	"nyc":           "JFK",
	"los angeles":   "LAX",
	"la":            "LAX",
	"san francisco": "SFO",
	"chicago":       "ORD",
	"miami":         "MIA",
	"london":        "LHR",
	"paris":         "CDG",
	"tokyo":         "NRT",
	"sydney":        "SYD",
	"rome":          "FCO",
	"madrid":        "MAD",
	"barcelona":     "BCN",
	"berlin":        "BER",
	"amsterdam":     "AMS",
	"dubai":         "DXB",
	"singapore":     "SIN",
	"hong kong":     "HKG",
	"seattle":       "SEA",
	"boston":        "BOS",
	"washington":    "IAD",
	"toronto":       "YYZ",
}

// Option is a functional option for configuring a [Resolver].
type Option func(*Resolver)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a city whose
// Double Metaphone codes overlap the input. Default: 0.88.
func WithPhoneticThreshold(threshold float64) Option {
	return func(r *Resolver) { r.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a city without
// phonetic overlap. Default: 0.93.
func WithFuzzyThreshold(threshold float64) Option {
	return func(r *Resolver) { r.fuzzyThreshold = threshold }
}

// WithCities replaces [DefaultCities]. Keys are matched case-insensitively.
func WithCities(cities map[string]string) Option {
	return func(r *Resolver) {
		r.cities = make(map[string]string, len(cities))
		for k, v := range cities {
			r.cities[strings.ToLower(strings.TrimSpace(k))] = strings.ToUpper(v)
		}
	}
}

type entry struct {
	name   string
	tokens []string
	codes  map[string]struct{}
	iata   string
}

// Resolver normalises airport inputs. It is read-only after construction and
// safe for concurrent use.
type Resolver struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	cities            map[string]string
	entries           []entry
}

// New returns a Resolver configured with opts.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
		cities:            DefaultCities,
	}
	for _, o := range opts {
		o(r)
	}
	for name, iata := range r.cities {
		// Abbreviations are too short to fuzzy match meaningfully.
		if len(name) <= 3 {
			continue
		}
		tokens := strings.Fields(name)
		r.entries = append(r.entries, entry{name: name, tokens: tokens, codes: codesForTokens(tokens), iata: iata})
	}
	slices.SortFunc(r.entries, func(a, b entry) int { return cmp.Compare(a.name, b.name) })
	return r
}

// Normalize returns the IATA code for input. See the package documentation
// for the resolution order. An empty input yields "".
func (r *Resolver) Normalize(input string) string {
	in := strings.TrimSpace(input)
	lower := strings.ToLower(in)
	if code, ok := r.cities[lower]; ok {
		return code
	}
	if len(in) == 3 && isAlpha(in) {
		return strings.ToUpper(in)
	}
	if code, ok := r.match(lower); ok {
		return code
	}
	return prefix(in)
}

// match finds the best table entry for lower. Phonetic candidates always win
// over pure string similarity.
func (r *Resolver) match(lower string) (string, bool) {
	tokens := strings.Fields(lower)
	if len(tokens) == 0 {
		return "", false
	}
	inputCodes := codesForTokens(tokens)

	var (
		best     string
		score    float64
		phonetic bool
	)
	for _, e := range r.entries {
		jw := similarity(tokens, e.tokens, lower, e.name)
		if codesOverlap(inputCodes, e.codes) {
			if jw >= r.phoneticThreshold && (!phonetic || jw > score) {
				best, score, phonetic = e.iata, jw, true
			}
		} else if !phonetic && jw >= r.fuzzyThreshold && jw > score {
			best, score = e.iata, jw
		}
	}
	return best, best != ""
}

func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// similarity compares full strings and, for multi-word input, the strings
// with spaces removed ("hongkong" vs "hong kong"). Token-pair scores are not
// used: they let "new orleans" reach "new york".
func similarity(inputTokens, cityTokens []string, input, city string) float64 {
	score := matchr.JaroWinkler(input, city, false)
	if len(inputTokens) > 1 || len(cityTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(inputTokens, ""), strings.Join(cityTokens, ""), false); s > score {
			score = s
		}
	}
	return score
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// prefix returns the first three runes of s upper-cased.
func prefix(s string) string {
	runes := []rune(strings.ToUpper(s))
	if len(runes) > 3 {
		runes = runes[:3]
	}
	return string(runes)
}
