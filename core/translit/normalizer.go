// Package translit turns free-form Uzbek place names written in Latin or
// Cyrillic script into one canonical Cyrillic spelling used as the key for
// region encoding.
package translit

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// letters maps Latin sequences to Cyrillic in application order. Apostrophe
// variants only modify the preceding letter and produce no output of their
// own.
var letters = [...][2]string{
	{"yo", "ё"}, {"yu", "ю"}, {"ya", "я"}, {"ye", "е"},
	{"o‘", "ў"}, {"g‘", "ғ"}, {"o'", "ў"}, {"g'", "ғ"},
	{"sh", "ш"}, {"ch", "ч"}, {"ng", "нг"},

	{"a", "а"}, {"b", "б"}, {"d", "д"}, {"e", "э"}, {"f", "ф"},
	{"g", "г"}, {"h", "ҳ"}, {"i", "и"}, {"j", "ж"}, {"k", "к"},
	{"l", "л"}, {"m", "м"}, {"n", "н"}, {"o", "о"}, {"p", "п"},
	{"q", "қ"}, {"r", "р"}, {"s", "с"}, {"t", "т"}, {"u", "у"},
	{"v", "в"}, {"x", "х"}, {"y", "й"}, {"z", "з"},

	{"’", ""}, {"'", ""}, {"ʻ", ""}, {"`", ""},
}

// rule is one global replacement step.
type rule struct {
	from, to string
}

// Normalizer converts place names to canonical Cyrillic.
type Normalizer struct {
	exceptions map[string]string
	rules      []rule
}

// New builds a Normalizer from the built-in tables plus extra exceptions.
// Extra entries override built-in ones with the same key.
func New(extra map[string]string) *Normalizer {
	exc := Exceptions()
	for k, v := range extra {
		exc[strings.ToLower(k)] = v
	}
	return &Normalizer{exceptions: exc, rules: defaultRules}
}

// OrDefault returns n, or the Normalizer with only built-in exceptions when n
// is nil.
func OrDefault(n *Normalizer) *Normalizer {
	if n == nil {
		return defaultNormalizer
	}
	return n
}

// buildRules lists the lower case mappings followed by their upper and title
// case variants, then stably orders them longest key first. Each rule is
// applied to the whole string before the next one, so "g'" wins over the
// "ng" that precedes it in "Mang'it".
func buildRules() []rule {
	rules := make([]rule, 0, len(letters)*3)
	index := make(map[string]int, len(letters)*3)
	add := func(from, to string) {
		if i, ok := index[from]; ok {
			rules[i].to = to
			return
		}
		index[from] = len(rules)
		rules = append(rules, rule{from: from, to: to})
	}
	for _, l := range letters {
		add(l[0], l[1])
	}
	for _, l := range letters {
		add(strings.ToUpper(l[0]), strings.ToUpper(l[1]))
		add(capitalize(l[0]), capitalize(l[1]))
	}
	sort.SliceStable(rules, func(i, j int) bool {
		return utf8.RuneCountInString(rules[i].from) > utf8.RuneCountInString(rules[j].from)
	})
	return rules
}

var defaultRules = buildRules()

func (n *Normalizer) transliterate(s string) string {
	for _, r := range n.rules {
		s = strings.ReplaceAll(s, r.from, r.to)
	}
	return s
}

// Normalize returns the canonical Cyrillic form of text: known regions come
// from the exception table, anything else is transliterated letter by letter.
// The result always starts upper case with the remainder lower case.
func (n *Normalizer) Normalize(text string) string {
	s := strings.TrimSpace(text)
	if s == "" {
		return ""
	}
	if v, ok := n.exceptions[strings.ToLower(s)]; ok {
		return v
	}
	return capitalize(n.transliterate(s))
}

// Canonical routes already-Cyrillic text around transliteration and only
// fixes its case; Latin text goes through Normalize.
func (n *Normalizer) Canonical(text string) string {
	s := strings.TrimSpace(text)
	if IsCyrillic(s) {
		return capitalize(s)
	}
	return n.Normalize(s)
}

// IsCyrillic reports whether text contains at least one Cyrillic letter in
// the А..я range or Ё/ё.
func IsCyrillic(text string) bool {
	for _, r := range text {
		if (r >= 'А' && r <= 'я') || r == 'Ё' || r == 'ё' {
			return true
		}
	}
	return false
}

// RegionPart keeps only the first comma-separated segment of a place name.
func RegionPart(raw string) string {
	head, _, _ := strings.Cut(raw, ",")
	return strings.TrimSpace(head)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError && size <= 1 {
		return strings.ToLower(s)
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

var defaultNormalizer = New(nil)

// Normalize applies the default Normalizer.
func Normalize(text string) string { return defaultNormalizer.Normalize(text) }

// Canonical applies the default Normalizer's Canonical.
func Canonical(text string) string { return defaultNormalizer.Canonical(text) }
