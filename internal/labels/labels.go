// Package labels maps model scores onto catalog categories.
package labels

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Brownie44l1/carid/internal/catalog"
)

// Prediction is the winning category for one score vector.
type Prediction struct {
	Index      int     `json:"index"`
	ID         string  `json:"category"`
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
}

// Resolve picks the highest score and looks up its category. Ties go to the
// lowest index and NaN scores never win.
func Resolve(scores []float32, cat *catalog.Catalog) (Prediction, error) {
	if len(scores) != cat.Len() {
		return Prediction{}, &catalog.MismatchError{Categories: cat.Len(), Scores: len(scores)}
	}
	idx := Argmax(scores)
	return predictionAt(idx, scores, cat), nil
}

// Argmax returns the index of the largest non-NaN value, preferring the
// lowest index on ties. It returns 0 when every value is NaN and -1 for an
// empty slice.
func Argmax(scores []float32) int {
	if len(scores) == 0 {
		return -1
	}
	best := -1
	for i, v := range scores {
		if math.IsNaN(float64(v)) {
			continue
		}
		if best < 0 || v > scores[best] {
			best = i
		}
	}
	if best < 0 {
		return 0
	}
	return best
}

// TopK returns up to k predictions ordered by descending score. Equal
// scores keep catalog order, and NaN scores sort last.
func TopK(scores []float32, cat *catalog.Catalog, k int) ([]Prediction, error) {
	if len(scores) != cat.Len() {
		return nil, &catalog.MismatchError{Categories: cat.Len(), Scores: len(scores)}
	}
	if k <= 0 {
		return nil, nil
	}
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		va, vb := scores[idx[a]], scores[idx[b]]
		if math.IsNaN(float64(vb)) {
			return !math.IsNaN(float64(va))
		}
		return va > vb
	})
	if k > len(idx) {
		k = len(idx)
	}
	out := make([]Prediction, k)
	for i := 0; i < k; i++ {
		out[i] = predictionAt(idx[i], scores, cat)
	}
	return out, nil
}

func predictionAt(i int, scores []float32, cat *catalog.Catalog) Prediction {
	c := cat.At(i)
	return Prediction{
		Index:      i,
		ID:         c.ID,
		Label:      Display(c.ID),
		Confidence: scores[i],
	}
}

// Display formats a category identifier for people, so "toyota_camry_2018"
// reads "Toyota Camry 2018". Each token gets an upper-case first letter and
// the rest lower-cased; hyphenated makes stay one word ("Mercedes-benz").
func Display(id string) string {
	tokens := catalog.Tokens(id)
	upper := cases.Upper(language.Und)
	lower := cases.Lower(language.Und)
	for i, tok := range tokens {
		_, size := utf8.DecodeRuneInString(tok)
		tokens[i] = upper.String(tok[:size]) + lower.String(tok[size:])
	}
	return strings.Join(tokens, " ")
}
