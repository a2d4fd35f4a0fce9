// Package listingref extracts listing identity from a pasted listing URL and
// normalizes free-text condition answers.
package listingref

import (
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotURL is returned for text that is not an http(s) URL.
	ErrNotURL = errors.New("not a listing url")

	// ErrNoIdentity is returned when neither an external id nor a make can be found.
	ErrNoIdentity = errors.New("listing url carries no identifying token")
)

const minExternalIDDigits = 6

var (
	tokenSplit = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	digitsOnly = regexp.MustCompile(`^\d+$`)
)

// Ref is what a listing URL reveals about the vehicle.
type Ref struct {
	Source     string
	ExternalID string
	Make       string
	Model      string
	Year       int
}

// Identifying reports whether ref can be told apart from other listings.
func (r Ref) Identifying() bool {
	return r.ExternalID != "" || r.Make != ""
}

// LooksLikeURL is a cheap pre-check used to route intake input.
func LooksLikeURL(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	return strings.HasPrefix(t, "http://") || strings.HasPrefix(t, "https://")
}

// Parse reads a listing reference from raw. The host becomes the source,
// the last run of at least six digits the external id, and the path slug
// supplies make, model and year when it follows the usual
// /<category>/<make>-<model>-...-<year>-...-<id> shape.
func Parse(raw string, now time.Time) (Ref, error) {
	raw = strings.TrimSpace(raw)
	if !LooksLikeURL(raw) {
		return Ref{}, ErrNotURL
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return Ref{}, ErrNotURL
	}

	ref := Ref{Source: strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")}

	segments := pathSegments(u.Path)
	ref.ExternalID = externalID(segments, u.Query())

	slug := vehicleSlug(segments)
	if slug != nil {
		ref.Make, ref.Model, ref.Year = describe(slug, now.Year())
	}

	if !ref.Identifying() {
		return ref, ErrNoIdentity
	}
	return ref, nil
}

func pathSegments(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if unescaped, err := url.PathUnescape(s); err == nil {
			s = unescaped
		}
		out = append(out, strings.ToLower(s))
	}
	return out
}

func externalID(segments []string, q url.Values) string {
	var last string
	for _, seg := range segments {
		for _, tok := range tokenSplit.Split(seg, -1) {
			if len(tok) >= minExternalIDDigits && digitsOnly.MatchString(tok) {
				last = tok
			}
		}
	}
	if last != "" {
		return last
	}
	for _, key := range []string{"id", "ilanid", "listing", "listingId"} {
		if v := q.Get(key); len(v) >= minExternalIDDigits && digitsOnly.MatchString(v) {
			return v
		}
	}
	return ""
}

// vehicleSlug picks the longest hyphenated path segment, which on listing
// sites is the human readable title.
func vehicleSlug(segments []string) []string {
	var best []string
	for _, seg := range segments {
		if !strings.Contains(seg, "-") {
			continue
		}
		toks := tokenSplit.Split(seg, -1)
		toks = compact(toks)
		if len(toks) > len(best) {
			best = toks
		}
	}
	return best
}

func compact(toks []string) []string {
	out := toks[:0]
	for _, t := range toks {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// slugNoise are leading words that precede the make on common listing sites.
var slugNoise = map[string]bool{
	"ilan": true, "vasita": true, "otomobil": true, "oto": true, "satilik": true,
	"sahibinden": true, "galeriden": true, "used": true, "car": true, "cars": true,
	"for": true, "sale": true, "listing": true, "ikinci": true, "el": true,
}

func describe(slug []string, currentYear int) (mk, model string, year int) {
	var words []string
	for _, tok := range slug {
		if digitsOnly.MatchString(tok) {
			if year == 0 && len(tok) == 4 {
				if y, err := strconv.Atoi(tok); err == nil && y >= 1950 && y <= currentYear+1 {
					year = y
				}
			}
			continue
		}
		if len(words) == 0 && slugNoise[tok] {
			continue
		}
		words = append(words, tok)
	}
	if len(words) > 0 {
		mk = words[0]
	}
	if len(words) > 1 {
		model = words[1]
	}
	return mk, model, year
}
