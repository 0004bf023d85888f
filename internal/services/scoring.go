package services

import (
	"encoding/json"
	"fmt"
	"math"
)

// reverseItems are the two question positions whose answers are
// reverse-scored: a raw value v contributes MaxAnswer-v to the total.
var reverseItems = map[int]bool{10: true, 11: true}

// dimensionItems maps each dimension to the fixed question positions it is
// averaged over. The lists may overlap; they are not a partition.
var dimensionItems = map[DimensionKey][]int{
	DimStickiness:    {0, 9},
	DimPastBrooding:  {1, 4, 8},
	DimFutureWorry:   {2, 6, 10},
	DimInterpersonal: {3, 7, 11},
}

// ReverseScore maps a raw answer to its reverse-scored value on the 0..max
// scale. Raw values are expected to be validated before scoring.
func ReverseScore(raw, max int) int {
	return max - raw
}

// ValidateAnswers checks that answers is a complete vector: exactly
// QuestionCount values, each in [0, MaxAnswer]. The returned error names
// the first offending index and value.
func ValidateAnswers(answers []int) error {
	if len(answers) != QuestionCount {
		return NewInvalidError(fmt.Sprintf("expected %d answers, got %d", QuestionCount, len(answers)))
	}
	for i, v := range answers {
		if v < 0 || v > MaxAnswer {
			return NewInvalidError(fmt.Sprintf("answer %d out of range: %d (want 0..%d)", i, v, MaxAnswer))
		}
	}
	return nil
}

// NormalizeAnswers validates externally supplied JSON into a well-formed
// answer vector. It rejects non-arrays, wrong lengths, non-integer values
// and out-of-range values, naming the offending index in the error.
func NormalizeAnswers(raw json.RawMessage) ([]int, error) {
	var vals []json.Number
	if err := json.Unmarshal(raw, &vals); err != nil {
		return nil, NewInvalidError("answers must be an array of integers")
	}
	if len(vals) != QuestionCount {
		return nil, NewInvalidError(fmt.Sprintf("expected %d answers, got %d", QuestionCount, len(vals)))
	}
	out := make([]int, QuestionCount)
	for i, n := range vals {
		v, err := n.Int64()
		if err != nil {
			return nil, NewInvalidError(fmt.Sprintf("answer %d is not an integer: %s", i, n.String()))
		}
		if v < 0 || v > MaxAnswer {
			return nil, NewInvalidError(fmt.Sprintf("answer %d out of range: %d (want 0..%d)", i, v, MaxAnswer))
		}
		out[i] = int(v)
	}
	return out, nil
}

// ComputeTotalScore sums the answer vector with the two reverse-scored
// positions flipped. The result is in [0, MaxTotalScore].
func ComputeTotalScore(answers []int) (int, error) {
	if err := ValidateAnswers(answers); err != nil {
		return 0, err
	}
	total := 0
	for i, v := range answers {
		if reverseItems[i] {
			total += ReverseScore(v, MaxAnswer)
		} else {
			total += v
		}
	}
	return total, nil
}

// ComputeDimensionScores averages the raw (non-reversed) answers of each
// dimension's question subset, rounded to one decimal place half away
// from zero.
func ComputeDimensionScores(answers []int) (map[DimensionKey]float64, error) {
	if err := ValidateAnswers(answers); err != nil {
		return nil, err
	}
	out := make(map[DimensionKey]float64, len(dimensionItems))
	for dim, idxs := range dimensionItems {
		sum := 0
		for _, i := range idxs {
			sum += answers[i]
		}
		out[dim] = roundTo1(float64(sum) / float64(len(idxs)))
	}
	return out, nil
}

// LevelOfDimension maps a dimension score to its display level using fixed
// inclusive thresholds.
func LevelOfDimension(score float64) string {
	switch {
	case score <= 1.3:
		return "low"
	case score <= 2.6:
		return "medium"
	default:
		return "high"
	}
}

// roundTo1 rounds half away from zero to one decimal place.
func roundTo1(v float64) float64 {
	return math.Round(v*10) / 10
}
