package services

import (
	"math"
	"sort"
)

// highlightCount is how many items each of the similarity/difference
// lists carries in the comparison report.
const highlightCount = 3

// QuestionDiff is the per-question outcome of a pairwise comparison.
type QuestionDiff struct {
	Index        int          `json:"index"`
	SubjectValue int          `json:"subject_value"`
	PairedValue  int          `json:"paired_value"`
	Diff         int          `json:"diff"`
	Category     DiffCategory `json:"category"`
}

// QuestionHighlight is one selected similarity or difference with its
// canned narrative.
type QuestionHighlight struct {
	Index     int          `json:"index"`
	Diff      int          `json:"diff"`
	Category  DiffCategory `json:"category"`
	Narrative string       `json:"narrative"`
}

// QuestionComparison is the full per-question comparison report.
type QuestionComparison struct {
	Items             []QuestionDiff      `json:"items"`
	SumDiff           int                 `json:"sum_diff"`
	SimilarityPercent int                 `json:"similarity_percent"`
	SimilarityBand    string              `json:"similarity_band"`
	SimilarityLabel   string              `json:"similarity_label"`
	Similarities      []QuestionHighlight `json:"similarities"`
	Differences       []QuestionHighlight `json:"differences"`
}

// CategorizeDiff buckets an absolute answer difference.
func CategorizeDiff(diff int) DiffCategory {
	switch {
	case diff == 0:
		return DiffSame
	case diff == 1:
		return DiffClose
	case diff == 2:
		return DiffDifferent
	default:
		return DiffVeryDifferent
	}
}

// similarityBand maps a similarity percent to its band key. Bands have
// inclusive lower bounds and are evaluated top-down.
func similarityBand(percent int) string {
	switch {
	case percent >= 80:
		return "high"
	case percent >= 60:
		return "medium"
	case percent >= 40:
		return "low"
	default:
		return "very_different"
	}
}

// ComparePerQuestion compares two answer vectors item by item. Both
// vectors must be complete; malformed input fails fast. The three
// lowest-diff questions become similarities and the three highest-diff
// questions become differences (ties by original order, the difference
// list reversed for display).
func ComparePerQuestion(subject, paired []int, content *Content) (*QuestionComparison, error) {
	if err := ValidateAnswers(subject); err != nil {
		return nil, err
	}
	if err := ValidateAnswers(paired); err != nil {
		return nil, err
	}
	items := make([]QuestionDiff, QuestionCount)
	sum := 0
	for i := range subject {
		d := subject[i] - paired[i]
		if d < 0 {
			d = -d
		}
		sum += d
		items[i] = QuestionDiff{
			Index:        i,
			SubjectValue: subject[i],
			PairedValue:  paired[i],
			Diff:         d,
			Category:     CategorizeDiff(d),
		}
	}
	percent := int(math.Round((1 - float64(sum)/float64(MaxTotalScore)) * 100))
	band := similarityBand(percent)
	label, ok := content.SimilarityLabels[band]
	if !ok {
		return nil, NewConfigurationError("missing similarity label for band " + band)
	}

	asc := make([]QuestionDiff, len(items))
	copy(asc, items)
	sort.SliceStable(asc, func(i, j int) bool { return asc[i].Diff < asc[j].Diff })

	similarities, err := buildQuestionHighlights(asc[:highlightCount], content)
	if err != nil {
		return nil, err
	}

	desc := make([]QuestionDiff, len(items))
	copy(desc, items)
	sort.SliceStable(desc, func(i, j int) bool { return desc[i].Diff > desc[j].Diff })
	top := desc[:highlightCount]
	differences, err := buildQuestionHighlights(top, content)
	if err != nil {
		return nil, err
	}
	// Reverse the difference list for display.
	for i, j := 0, len(differences)-1; i < j; i, j = i+1, j-1 {
		differences[i], differences[j] = differences[j], differences[i]
	}

	return &QuestionComparison{
		Items:             items,
		SumDiff:           sum,
		SimilarityPercent: percent,
		SimilarityBand:    band,
		SimilarityLabel:   label,
		Similarities:      similarities,
		Differences:       differences,
	}, nil
}

func buildQuestionHighlights(picked []QuestionDiff, content *Content) ([]QuestionHighlight, error) {
	out := make([]QuestionHighlight, 0, len(picked))
	for _, qd := range picked {
		narrative, err := content.QuestionNarrative(qd.Index, qd.Category)
		if err != nil {
			return nil, err
		}
		out = append(out, QuestionHighlight{
			Index:     qd.Index,
			Diff:      qd.Diff,
			Category:  qd.Category,
			Narrative: narrative,
		})
	}
	return out, nil
}
