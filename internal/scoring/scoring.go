// Package scoring turns transactions into fraud verdicts.
//
// A request is validated, stamped with the next process-wide sequence
// number, encoded into the classifier's feature vector and classified. The
// positive-class probability is then bucketed into a coarse confidence tier.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mbd888/fraudgate/internal/features"
	"github.com/mbd888/fraudgate/internal/logging"
	"github.com/mbd888/fraudgate/internal/model"
	"github.com/mbd888/fraudgate/internal/sequence"
	"github.com/mbd888/fraudgate/internal/traces"
)

var (
	// ErrValidation is a malformed or out-of-enum request. User-correctable.
	ErrValidation = errors.New("invalid transaction")
	// ErrInferenceUnavailable means no classifier is loaded.
	ErrInferenceUnavailable = errors.New("model not loaded")
	// ErrFeatureMismatch means the encoder and the loaded classifier
	// disagree on input width.
	ErrFeatureMismatch = errors.New("feature mismatch")
	// ErrInference wraps any other classifier failure.
	ErrInference = errors.New("inference failed")
)

// Confidence is a coarse certainty tier derived from the fraud probability.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ConfidenceFor buckets a fraud probability. Bands are checked in order:
// the medium test only sees probabilities the high test let through, so
// medium covers (0.6,0.8] and [0.2,0.4) and low covers [0.4,0.6].
func ConfidenceFor(p float64) Confidence {
	if p > 0.8 || p < 0.2 {
		return ConfidenceHigh
	}
	if p > 0.6 || p < 0.4 {
		return ConfidenceMedium
	}
	return ConfidenceLow
}

// Result is a fraud verdict.
type Result struct {
	IsFraud          bool       `json:"is_fraud"`
	FraudProbability float64    `json:"fraud_probability"`
	Confidence       Confidence `json:"confidence"`
}

// ModelInfo describes the loaded classifier.
type ModelInfo struct {
	ModelType    string   `json:"model_type"`
	NFeatures    int      `json:"n_features"`
	FeatureNames []string `json:"feature_names"`
	Note         string   `json:"note"`
}

// Capabilities is the static API descriptor served at the root.
type Capabilities struct {
	Message        string   `json:"message"`
	Status         string   `json:"status"`
	RequiredFields []string `json:"required_fields"`
	OptionalFields []string `json:"optional_fields"`
	ValidTypes     []string `json:"valid_types"`
}

const flaggedNote = "isFlaggedFraud defaults to 0 if not provided"

// Service scores transactions against a single classifier.
type Service struct {
	classifier model.Classifier
	counter    *sequence.Counter
}

// NewService creates a scoring service. classifier may be nil, in which case
// every prediction fails with ErrInferenceUnavailable. A nil counter gets a
// fresh one.
func NewService(classifier model.Classifier, counter *sequence.Counter) *Service {
	if counter == nil {
		counter = sequence.New()
	}
	return &Service{classifier: classifier, counter: counter}
}

// Ready reports whether a classifier is loaded.
func (s *Service) Ready() bool {
	return s.classifier != nil
}

// Sequence returns the last sequence number handed out.
func (s *Service) Sequence() uint64 {
	return s.counter.Current()
}

// Predict scores tx. Only transactions with a valid type consume a sequence
// number; later failures (missing model, width mismatch) do not give it back.
func (s *Service) Predict(ctx context.Context, tx features.Transaction) (result *Result, err error) {
	ctx, span := traces.StartSpan(ctx, "scoring.predict", traces.TxType(string(tx.Type)))
	defer func() {
		if err != nil {
			predictionErrorsTotal.WithLabelValues(errorKind(err)).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if !tx.Type.Valid() {
		_, perr := features.ParseTransactionType(string(tx.Type))
		return nil, fmt.Errorf("%w: %v", ErrValidation, perr)
	}

	step := s.counter.Next()
	lastSequence.Set(float64(step))
	span.SetAttributes(traces.Step(step))

	vec := features.Encode(tx, step)
	logging.L(ctx).Debug("encoded transaction", "step", step, "features", vec.Describe())

	if s.classifier == nil {
		return nil, ErrInferenceUnavailable
	}
	span.SetAttributes(traces.ModelType(s.classifier.TypeName()))
	x := vec.Slice()
	if want := s.classifier.NFeatures(); len(x) != want {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrFeatureMismatch, len(x), want)
	}

	start := time.Now()
	label, err := s.classifier.Predict(x)
	if err != nil {
		return nil, fmt.Errorf("%w: predict: %v", ErrInference, err)
	}
	proba, err := s.classifier.PredictProba(x)
	if err != nil {
		return nil, fmt.Errorf("%w: predict_proba: %v", ErrInference, err)
	}
	inferenceDuration.Observe(time.Since(start).Seconds())
	if len(proba) < 2 {
		return nil, fmt.Errorf("%w: expected 2 class probabilities, got %d", ErrInference, len(proba))
	}

	p := proba[1]
	result = &Result{
		IsFraud:          label != 0,
		FraudProbability: p,
		Confidence:       ConfidenceFor(p),
	}

	span.SetAttributes(
		traces.Confidence(string(result.Confidence)),
		attribute.Bool("fraud.is_fraud", result.IsFraud),
	)
	predictionsTotal.WithLabelValues(string(result.Confidence), verdict(result.IsFraud)).Inc()

	return result, nil
}

// Describe reports the loaded classifier's type and input schema.
func (s *Service) Describe() (*ModelInfo, error) {
	if s.classifier == nil {
		return nil, ErrInferenceUnavailable
	}
	names := s.classifier.FeatureNames()
	if names == nil {
		names = []string{}
	}
	return &ModelInfo{
		ModelType:    s.classifier.TypeName(),
		NFeatures:    s.classifier.NFeatures(),
		FeatureNames: names,
		Note:         flaggedNote,
	}, nil
}

// APIDescriptor returns the static API descriptor.
func APIDescriptor() *Capabilities {
	return &Capabilities{
		Message: "Fraud Detection API",
		Status:  "running",
		RequiredFields: []string{
			"type", "amount", "oldbalanceOrg",
			"newbalanceOrig", "oldbalanceDest", "newbalanceDest",
		},
		OptionalFields: []string{"isFlaggedFraud (defaults to 0)"},
		ValidTypes:     features.ValidTypeNames(),
	}
}

func verdict(isFraud bool) string {
	if isFraud {
		return "fraud"
	}
	return "legit"
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInferenceUnavailable):
		return "unavailable"
	case errors.Is(err, ErrFeatureMismatch):
		return "feature_mismatch"
	default:
		return "inference"
	}
}
