package model

import (
	"fmt"
	"math"
)

// Score turns a raw output vector into a response. Only the first len(Classes) values are
// considered.
func (m Metadata) Score(output []float32) (*PredictionResponse, error) {
	if len(output) < len(m.Classes) || len(m.Classes) == 0 {
		return nil, fmt.Errorf("%w: got %d scores for %d classes", ErrShapeMismatch, len(output), len(m.Classes))
	}

	probabilities := make([]float32, len(m.Classes))
	copy(probabilities, output)
	if m.OutputIsLogits {
		probabilities = Softmax(probabilities)
	}

	maxIdx := Argmax(probabilities)
	return &PredictionResponse{
		Prediction:    m.Digit(maxIdx),
		Confidence:    probabilities[maxIdx],
		Probabilities: probabilities,
	}, nil
}

// Argmax returns the index of the largest value; ties resolve to the lowest index.
// NaN never wins. An empty slice returns -1.
func Argmax(values []float32) int {
	if len(values) == 0 {
		return -1
	}
	maxIdx := 0
	for i, val := range values {
		if math.IsNaN(float64(values[maxIdx])) && !math.IsNaN(float64(val)) {
			maxIdx = i
			continue
		}
		if val > values[maxIdx] {
			maxIdx = i
		}
	}
	return maxIdx
}

func Softmax(logits []float32) []float32 {
	out := make([]float32, len(logits))
	if len(logits) == 0 {
		return out
	}

	maxLogit := logits[Argmax(logits)]
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxLogit))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}
