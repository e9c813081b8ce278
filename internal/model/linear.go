package model

import (
	"fmt"
	"math"
)

// Logistic is a binary logistic regression.
type Logistic struct {
	meta
	coef      []float64
	intercept float64
}

func newLogistic(m meta, coef []float64, intercept float64) (*Logistic, error) {
	if len(coef) != m.nFeatures {
		return nil, fmt.Errorf("%w: %d coefficients for %d features", ErrInvalidArtifact, len(coef), m.nFeatures)
	}
	for i, c := range coef {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("%w: coefficient %d is not finite", ErrInvalidArtifact, i)
		}
	}
	return &Logistic{
		meta:      m,
		coef:      append([]float64(nil), coef...),
		intercept: intercept,
	}, nil
}

// DecisionFunction returns the signed distance to the separating hyperplane.
func (l *Logistic) DecisionFunction(x []float64) (float64, error) {
	if err := l.checkWidth(x); err != nil {
		return 0, err
	}
	z := l.intercept
	for i, c := range l.coef {
		z += c * x[i]
	}
	return z, nil
}

func (l *Logistic) PredictProba(x []float64) ([]float64, error) {
	z, err := l.DecisionFunction(x)
	if err != nil {
		return nil, err
	}
	p := sigmoid(z)
	return []float64{1 - p, p}, nil
}

func (l *Logistic) Predict(x []float64) (int, error) {
	proba, err := l.PredictProba(x)
	if err != nil {
		return 0, err
	}
	return l.label(proba), nil
}

// sigmoid without overflow for large |z|.
func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
