package services

import (
	"sort"
	"strings"
)

// similarDeltaCeiling is the exclusive bound under which a per-dimension
// delta counts as similar.
const similarDeltaCeiling = 0.8

// DimensionComparison is the outcome for one dimension.
type DimensionComparison struct {
	Dimension    DimensionKey `json:"dimension"`
	SubjectScore float64      `json:"subject_score"`
	PairedScore  float64      `json:"paired_score"`
	Delta        float64      `json:"delta"`
	Relation     Relation     `json:"relation"`
	SubjectLevel string       `json:"subject_level"`
	PairedLevel  string       `json:"paired_level"`
}

// InsightHighlight is one dimension selected for the insight card.
type InsightHighlight struct {
	Dimension  DimensionKey `json:"dimension"`
	Title      string       `json:"title"`
	Relation   Relation     `json:"relation"`
	Delta      float64      `json:"delta"`
	Narrative  string       `json:"narrative"`
	Definition string       `json:"definition"`
}

// InsightReport is the richer per-dimension comparison card plus the
// deterministic share text.
type InsightReport struct {
	Dimensions   []DimensionComparison `json:"dimensions"`
	SimilarCount int                   `json:"similar_count"`
	Verdict      string                `json:"verdict"`
	Highlights   []InsightHighlight    `json:"highlights"`
	ShareText    string                `json:"share_text"`
}

// BuildInsight compares two answer vectors dimension by dimension and
// assembles the insight card. Malformed vectors fail fast.
func BuildInsight(subject, paired []int, content *Content) (*InsightReport, error) {
	subjectScores, err := ComputeDimensionScores(subject)
	if err != nil {
		return nil, err
	}
	pairedScores, err := ComputeDimensionScores(paired)
	if err != nil {
		return nil, err
	}
	return buildInsightFromScores(subjectScores, pairedScores, content)
}

func buildInsightFromScores(subjectScores, pairedScores map[DimensionKey]float64, content *Content) (*InsightReport, error) {
	dims := make([]DimensionComparison, 0, len(DimensionKeys))
	similar := 0
	for _, dim := range DimensionKeys {
		a := subjectScores[dim]
		b := pairedScores[dim]
		delta := roundTo1(abs(a - b))
		rel := RelationDifferent
		if delta < similarDeltaCeiling {
			rel = RelationSimilar
			similar++
		}
		dims = append(dims, DimensionComparison{
			Dimension:    dim,
			SubjectScore: a,
			PairedScore:  b,
			Delta:        delta,
			Relation:     rel,
			SubjectLevel: LevelOfDimension(a),
			PairedLevel:  LevelOfDimension(b),
		})
	}

	highlights, err := selectHighlights(dims, content)
	if err != nil {
		return nil, err
	}
	shareText, err := buildShareText(dims, content)
	if err != nil {
		return nil, err
	}

	return &InsightReport{
		Dimensions:   dims,
		SimilarCount: similar,
		Verdict:      insightVerdict(similar),
		Highlights:   highlights,
		ShareText:    shareText,
	}, nil
}

// insightVerdict maps the number of similar dimensions to the aggregate
// similarity verdict.
func insightVerdict(similarCount int) string {
	switch {
	case similarCount <= 1:
		return "low"
	case similarCount == 2:
		return "medium"
	default:
		return "high"
	}
}

// selectHighlights prefers different dimensions by descending delta, then
// fills remaining slots from similar dimensions by descending delta, up to
// three in total.
func selectHighlights(dims []DimensionComparison, content *Content) ([]InsightHighlight, error) {
	ordered := make([]DimensionComparison, len(dims))
	copy(ordered, dims)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Relation != ordered[j].Relation {
			return ordered[i].Relation == RelationDifferent
		}
		return ordered[i].Delta > ordered[j].Delta
	})
	if len(ordered) > highlightCount {
		ordered = ordered[:highlightCount]
	}
	out := make([]InsightHighlight, 0, len(ordered))
	for _, dc := range ordered {
		title, ok := content.DimensionTitles[dc.Dimension]
		if !ok {
			return nil, NewConfigurationError("missing title for dimension " + string(dc.Dimension))
		}
		narrative, err := content.DimensionNarrative(dc.Dimension, dc.Relation)
		if err != nil {
			return nil, err
		}
		definition, ok := content.DimensionDefinitions[dc.Dimension]
		if !ok {
			return nil, NewConfigurationError("missing definition for dimension " + string(dc.Dimension))
		}
		out = append(out, InsightHighlight{
			Dimension:  dc.Dimension,
			Title:      title,
			Relation:   dc.Relation,
			Delta:      dc.Delta,
			Narrative:  narrative,
			Definition: definition,
		})
	}
	return out, nil
}

// buildShareText assembles the multi-line share text: fixed header,
// similar-dimension bullets, different-dimension bullets, disclaimers and
// the call-to-action line. Dimension bullets follow canonical order so the
// text is deterministic.
func buildShareText(dims []DimensionComparison, content *Content) (string, error) {
	var similarTitles, differentTitles []string
	for _, dc := range dims {
		title, ok := content.DimensionTitles[dc.Dimension]
		if !ok {
			return "", NewConfigurationError("missing title for dimension " + string(dc.Dimension))
		}
		if dc.Relation == RelationSimilar {
			similarTitles = append(similarTitles, title)
		} else {
			differentTitles = append(differentTitles, title)
		}
	}

	lines := []string{content.ShareHeader}
	if len(similarTitles) > 0 {
		lines = append(lines, content.ShareSimilarTitle)
		for _, t := range similarTitles {
			lines = append(lines, "• "+t)
		}
	}
	if len(differentTitles) > 0 {
		lines = append(lines, content.ShareDifferentTitle)
		for _, t := range differentTitles {
			lines = append(lines, "• "+t)
		}
	}
	lines = append(lines, content.ShareDisclaimers...)
	lines = append(lines, content.ShareCTA)
	return strings.Join(lines, "\n"), nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
