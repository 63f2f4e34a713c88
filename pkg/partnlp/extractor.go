// Package partnlp extracts appliance entity mentions (model numbers, part
// numbers, brand names, symptom phrases, product types) from unstructured
// text using regex patterns and alias tables. No external dependencies.
package partnlp

import (
	"regexp"
	"sort"
	"strings"
)

// Extraction holds the entity mentions found in a piece of text.
type Extraction struct {
	ModelNums    []string // e.g. "FPHD2491KF0"
	PartNums     []string // PartSelect numbers, e.g. "PS11752778"
	MfrPartNums  []string // manufacturer part numbers, e.g. "WPW10321304"
	Brands       []string // canonical brand names
	ProductTypes []string // e.g. "Dishwasher"
	Symptoms     []string // canonical symptom phrases
}

// Empty reports whether nothing was extracted.
func (e Extraction) Empty() bool {
	return len(e.ModelNums) == 0 && len(e.PartNums) == 0 && len(e.MfrPartNums) == 0 &&
		len(e.Brands) == 0 && len(e.ProductTypes) == 0 && len(e.Symptoms) == 0
}

// brandAliases maps lowercase aliases to canonical brand names.
var brandAliases = map[string]string{
	"whirlpool":        "Whirlpool",
	"frigidaire":       "Frigidaire",
	"kenmore":          "Kenmore",
	"ge":               "GE",
	"general electric": "GE",
	"lg":               "LG",
	"samsung":          "Samsung",
	"maytag":           "Maytag",
	"bosch":            "Bosch",
	"kitchenaid":       "KitchenAid",
	"kitchen aid":      "KitchenAid",
	"electrolux":       "Electrolux",
	"amana":            "Amana",
	"admiral":          "Admiral",
	"magic chef":       "Magic Chef",
	"hotpoint":         "Hotpoint",
	"jenn-air":         "Jenn-Air",
	"jenn air":         "Jenn-Air",
	"roper":            "Roper",
	"estate":           "Estate",
	"haier":            "Haier",
	"speed queen":      "Speed Queen",
	"dacor":            "Dacor",
}

// productTypeAliases maps lowercase aliases to canonical product types.
var productTypeAliases = map[string]string{
	"dishwasher":       "Dishwasher",
	"refrigerator":     "Refrigerator",
	"fridge":           "Refrigerator",
	"freezer":          "Freezer",
	"washer":           "Washer",
	"washing machine":  "Washer",
	"dryer":            "Dryer",
	"microwave":        "Microwave",
	"oven":             "Oven",
	"range":            "Range",
	"stove":            "Range",
	"cooktop":          "Cooktop",
	"ice maker":        "Refrigerator",
	"garbage disposal": "Garbage Disposal",
	"range hood":       "Range Hood",
	"trash compactor":  "Trash Compactor",
	"water heater":     "Water Heater",
	"air conditioner":  "Air Conditioner",
}

// knownSymptoms are canonical failure phrases with trigger keywords. A
// symptom matches when every keyword appears in the normalised text;
// entries whose keywords are ordinary appliance nouns additionally require
// negation phrasing so "the drain hose" alone doesn't fire.
var knownSymptoms = []struct {
	Canonical     string
	Keywords      []string
	NeedsNegation bool
}{
	{"Ice maker not making ice", []string{"ice", "making"}, true},
	{"Not dispensing ice", []string{"ice", "dispens"}, false},
	{"Not dispensing water", []string{"water", "dispens"}, false},
	{"Leaking", []string{"leak"}, false},
	{"Not draining", []string{"drain"}, true},
	{"Not cleaning dishes properly", []string{"clean", "dish"}, false},
	{"Not cooling", []string{"cool"}, true},
	{"Not heating", []string{"heat"}, true},
	{"Not starting", []string{"start"}, true},
	{"Noisy", []string{"nois"}, false},
	{"Not spinning", []string{"spin"}, true},
	{"Door won't close", []string{"door", "clos"}, true},
	{"Door latch failure", []string{"door", "latch"}, false},
	{"Not tumbling", []string{"tumbl"}, true},
	{"Will not agitate", []string{"agitat"}, true},
	{"Burner won't light", []string{"burner", "light"}, true},
	{"Sparking", []string{"spark"}, false},
	{"Not defrosting", []string{"defrost"}, true},
	{"Fills slowly", []string{"fill", "slow"}, false},
	{"Overflowing", []string{"overflow"}, false},
}

// partSelectNumRe matches PartSelect part numbers ("PS" + digits).
var partSelectNumRe = regexp.MustCompile(`(?i)\bPS\d{5,9}\b`)

// mfrPartNumRe matches manufacturer part numbers: a short letter prefix
// followed by digits and an optional alphanumeric tail (WPW10321304, DA29...).
var mfrPartNumRe = regexp.MustCompile(`\b[A-Z]{1,4}\d{5,}[A-Z0-9]*\b`)

// modelNumRe matches appliance model numbers: mixed letters and digits,
// at least six characters (FPHD2491KF0, WDT780SAEM1, 106.51133210).
var modelNumRe = regexp.MustCompile(`\b(?:\d{3}\.\d{6,}|[A-Z]{2,5}\d{3,}[A-Z0-9]*)\b`)

// negationRe detects symptom negation phrasing ("isn't", "won't", "not",
// "doesn't", "stopped") so bare keywords like "heat" alone don't fire.
var negationRe = regexp.MustCompile(`(?i)\b(not|isn'?t|won'?t|doesn'?t|don'?t|stopp?ed|no longer|broken|fail)`)

// Extract scans text and returns all entity mentions found.
func Extract(text string) Extraction {
	var ex Extraction
	upper := strings.ToUpper(text)
	lower := strings.ToLower(text)

	seen := make(map[string]bool)
	take := func(dst *[]string, v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			*dst = append(*dst, v)
		}
	}

	for _, m := range partSelectNumRe.FindAllString(upper, -1) {
		take(&ex.PartNums, m)
	}

	// Model and manufacturer part numbers share an alphanumeric shape; a
	// token already claimed as a part number is not reconsidered.
	for _, m := range modelNumRe.FindAllString(upper, -1) {
		if seen[m] {
			continue
		}
		if looksLikeMfrPart(m) {
			take(&ex.MfrPartNums, m)
		} else {
			take(&ex.ModelNums, m)
		}
	}
	for _, m := range mfrPartNumRe.FindAllString(upper, -1) {
		if !seen[m] && looksLikeMfrPart(m) {
			take(&ex.MfrPartNums, m)
		}
	}

	for alias, canonical := range brandAliases {
		if containsWord(lower, alias) {
			take(&ex.Brands, canonical)
		}
	}
	for alias, canonical := range productTypeAliases {
		if containsWord(lower, alias) {
			take(&ex.ProductTypes, canonical)
		}
	}

	negated := negationRe.MatchString(lower)
	for _, s := range knownSymptoms {
		if s.NeedsNegation && !negated {
			continue
		}
		if matchesKeywords(lower, s.Keywords) {
			take(&ex.Symptoms, s.Canonical)
		}
	}

	sort.Strings(ex.Brands)
	sort.Strings(ex.ProductTypes)
	return ex
}

// looksLikeMfrPart distinguishes manufacturer part numbers from model numbers
// by their prefix: known OEM prefixes win; otherwise a long digit run after a
// 1-2 letter prefix is treated as a part number.
func looksLikeMfrPart(tok string) bool {
	for _, p := range []string{"WP", "W10", "W11", "DA", "DC", "DD", "DG", "WB", "WR", "WH", "WE", "AP"} {
		if strings.HasPrefix(tok, p) && len(tok) >= len(p)+5 {
			// Model numbers typically carry a letter tail (e.g. ...KF0);
			// OEM part numbers are mostly digits after the prefix.
			digits := 0
			for _, c := range tok[len(p):] {
				if c >= '0' && c <= '9' {
					digits++
				}
			}
			return digits >= len(tok[len(p):])-2
		}
	}
	return false
}

// containsWord reports whether alias occurs in text on word boundaries.
func containsWord(text, alias string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], alias)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(alias)
		beforeOK := start == 0 || !isWordChar(text[start-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}

// matchesKeywords requires every keyword to appear in the text.
func matchesKeywords(text string, keywords []string) bool {
	for _, kw := range keywords {
		if !strings.Contains(text, kw) {
			return false
		}
	}
	return true
}
