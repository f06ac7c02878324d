// Package varieties holds the fixed table of apple varieties the classifier
// was trained on, keyed by classifier label.
package varieties

import (
	"sort"
	"strings"
	"unicode"
)

// Variety is the display record for one classifier label.
type Variety struct {
	Label       string `json:"label"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageAsset  string `json:"image_asset,omitempty"`
}

// Unrecognized is returned by Lookup for labels outside the table.
var Unrecognized = Variety{
	Name:        "Unknown",
	Description: "Unable to identify this apple variety.",
}

var table = []Variety{
	{Label: "Apple Logo", Name: "Apple Logo", Description: "The Apple Logo!", ImageAsset: "AppleLogo.png"},
	{Label: "Braeburn", Name: "Braeburn", Description: "A red/orange apple originating from New Zealand.", ImageAsset: "Braeburn.jpg"},
	{Label: "Crispin", Name: "Crispin", Description: "A green Japanese apple also known as Mutsu.", ImageAsset: "Crispin.png"},
	{Label: "Fuji", Name: "Fuji", Description: "An apple hybrid, developed in Japan.", ImageAsset: "Fuji.jpg"},
	{Label: "Gala", Name: "Gala", Description: "A red apple that recently became the most produced apple in the United States.", ImageAsset: "Gala.jpg"},
	{Label: "Golden Delicious", Name: "Golden Delicious", Description: "A yellow apple, popular in the United States.", ImageAsset: "Golden Delicious.jpg"},
	{Label: "Granny Smith", Name: "Granny Smith", Description: "A green apple originating from Australia.", ImageAsset: "Granny Smith.jpg"},
	{Label: "Honeycrisp", Name: "Honeycrisp", Description: "An apple cultivar developed in Minnesota.", ImageAsset: "Honeycrisp.jpg"},
	{Label: "McIntosh", Name: "McIntosh", Description: "A red apple, the national apple of Canada.", ImageAsset: "McIntosh.jpg"},
	{Label: "Pink Lady", Name: "Pink Lady", Description: "A red apple, also known as Cripps Pink.", ImageAsset: "Pink Lady.jpg"},
	{Label: "Red Delicious", Name: "Red Delicious", Description: "A red apple, popular in the United States.", ImageAsset: "Red Delicious.jpg"},
}

var (
	byKey  = make(map[string]Variety, len(table))
	bySlug = make(map[string]Variety, len(table))
)

func init() {
	for _, v := range table {
		key := normalize(v.Label)
		if _, dup := byKey[key]; dup {
			panic("varieties: duplicate label " + v.Label)
		}
		byKey[key] = v
		bySlug[Slug(v)] = v
	}
}

// Lookup returns the variety for a classifier label. Labels are compared
// case-insensitively with whitespace, underscores and hyphens folded, so
// "golden_delicious" and " Golden  Delicious " both resolve. Unknown labels
// return Unrecognized and false.
func Lookup(label string) (Variety, bool) {
	v, ok := byKey[normalize(label)]
	if !ok {
		return Unrecognized, false
	}
	return v, true
}

// BySlug returns the variety whose Slug matches slug.
func BySlug(slug string) (Variety, bool) {
	v, ok := bySlug[strings.ToLower(slug)]
	return v, ok
}

// All returns a copy of the table sorted by label.
func All() []Variety {
	out := make([]Variety, len(table))
	copy(out, table)
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// Len is the number of known labels.
func Len() int { return len(table) }

// Slug is a URL-safe identifier for v, e.g. "golden-delicious".
func Slug(v Variety) string {
	return strings.ReplaceAll(normalize(v.Label), " ", "-")
}

func normalize(label string) string {
	fields := strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
		return unicode.IsSpace(r) || r == '_' || r == '-'
	})
	return strings.Join(fields, " ")
}
