package normalize

import (
	"crypto/sha1"
	"encoding/hex"
	"lapets-backend/lib/textutil"
	"net/url"
	"strings"
)

type Species string

const (
	Dog    Species = "Dog"
	Cat    Species = "Cat"
	Rabbit Species = "Rabbit"
	Bird   Species = "Bird"
	Other  Species = "Other"
)

type Age string

const (
	Baby   Age = "Baby"
	Young  Age = "Young"
	Adult  Age = "Adult"
	Senior Age = "Senior"
)

type Gender string

const (
	Male          Gender = "Male"
	Female        Gender = "Female"
	UnknownGender Gender = "Unknown"
)

type Size string

const (
	Small      Size = "Small"
	Medium     Size = "Medium"
	Large      Size = "Large"
	ExtraLarge Size = "Extra Large"
)

type rule[T any] struct {
	needles []string
	value   T
}

// rules are matched in order, the first one containing any of its
// needles wins.
func match[T any](text string, rules []rule[T], fallback T) T {
	lower := strings.ToLower(text)
	for _, r := range rules {
		for _, n := range r.needles {
			if strings.Contains(lower, n) {
				return r.value
			}
		}
	}
	return fallback
}

var ageRules = []rule[Age]{
	{needles: []string{"baby", "kitten", "puppy", "newborn"}, value: Baby},
	{needles: []string{"young", "juvenile", "adolescent"}, value: Young},
	{needles: []string{"senior", "old", "geriatric"}, value: Senior},
}

func ToAge(text string) Age {
	return match(text, ageRules, Adult)
}

// "extra large" must come before "large" and "xl" before anything
// containing "l".
var sizeRules = []rule[Size]{
	{needles: []string{"extra large", "xl", "giant"}, value: ExtraLarge},
	{needles: []string{"large", "lg"}, value: Large},
	{needles: []string{"small", "sm", "tiny", "toy"}, value: Small},
}

func ToSize(text string) Size {
	return match(text, sizeRules, Medium)
}

// "female" contains "male", so the female check happens inside the male
// branch.
func ToGender(text string) Gender {
	lower := strings.ToLower(strings.TrimSpace(text))
	if strings.Contains(lower, "male") || lower == "m" {
		if strings.Contains(lower, "female") {
			return Female
		}
		return Male
	}
	if lower == "f" {
		return Female
	}
	return UnknownGender
}

var speciesRules = []rule[Species]{
	{needles: []string{"dog", "canine", "puppy"}, value: Dog},
	{needles: []string{"cat", "feline", "kitten"}, value: Cat},
	{needles: []string{"rabbit", "bunny"}, value: Rabbit},
	{needles: []string{"bird", "parrot", "parakeet"}, value: Bird},
}

func ToSpecies(text string) Species {
	return match(text, speciesRules, Other)
}

// AgeFromYearsMonths maps a numeric age to an age bracket.
func AgeFromYearsMonths(years, months int) Age {
	switch {
	case years <= 0 && months < 12:
		return Baby
	case years < 2:
		return Young
	case years < 8:
		return Adult
	default:
		return Senior
	}
}

// PhotoURL resolves a possibly relative image reference against base.
//   - "//cdn/x.jpg" -> "https://cdn/x.jpg"
//   - "/img/x.jpg"  -> "<base origin>/img/x.jpg"
func PhotoURL(base, raw string) string {
	return AbsoluteURL(base, raw)
}

// AbsoluteURL resolves any link found on a page of base the way PhotoURL
// does.
func AbsoluteURL(base, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}

	baseUrl, err := url.Parse(base)
	if err != nil || baseUrl.Host == "" {
		return raw
	}
	if strings.HasPrefix(raw, "/") {
		return baseUrl.Scheme + "://" + baseUrl.Host + raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return baseUrl.ResolveReference(ref).String()
}

// SyntheticPrefix marks ids that were derived from record contents
// rather than given by the source.
const SyntheticPrefix = "syn-"

// SyntheticID derives a stable id from the identifying parts of a record
// for sources that do not expose one. Equal inputs (modulo case,
// whitespace and accents) always produce the same id.
func SyntheticID(parts ...string) string {
	h := sha1.New()
	for _, p := range parts {
		h.Write([]byte(textutil.NormalizeName(p)))
		h.Write([]byte{0})
	}
	return SyntheticPrefix + hex.EncodeToString(h.Sum(nil))[:16]
}

func IsSynthetic(id string) bool {
	return strings.HasPrefix(id, SyntheticPrefix)
}

// Flag reports a tri-state attribute from free text, negatives are
// checked first so "no dogs" is not read as "dogs".
func Flag(text string, positives, negatives []string) *bool {
	lower := strings.ToLower(text)
	for _, n := range negatives {
		if strings.Contains(lower, n) {
			return Bool(false)
		}
	}
	for _, p := range positives {
		if strings.Contains(lower, p) {
			return Bool(true)
		}
	}
	return nil
}

func Bool(b bool) *bool {
	return &b
}
