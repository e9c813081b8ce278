package scoring

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/mbd888/fraudgate/internal/features"
	"github.com/mbd888/fraudgate/internal/sequence"
)

// stubClassifier returns a fixed probability and records every input.
type stubClassifier struct {
	mu       sync.Mutex
	p        float64
	width    int
	names    []string
	typeName string
	inputs   [][]float64

	predictErr error
	probaErr   error
	shortProba bool
}

func newStub(p float64) *stubClassifier {
	return &stubClassifier{p: p, width: features.Width, typeName: "StubClassifier"}
}

func (s *stubClassifier) Predict(x []float64) (int, error) {
	if s.predictErr != nil {
		return 0, s.predictErr
	}
	s.mu.Lock()
	s.inputs = append(s.inputs, append([]float64(nil), x...))
	s.mu.Unlock()
	if s.p > 0.5 {
		return 1, nil
	}
	return 0, nil
}

func (s *stubClassifier) PredictProba(x []float64) ([]float64, error) {
	if s.probaErr != nil {
		return nil, s.probaErr
	}
	if s.shortProba {
		return []float64{1}, nil
	}
	return []float64{1 - s.p, s.p}, nil
}

func (s *stubClassifier) NFeatures() int          { return s.width }
func (s *stubClassifier) FeatureNames() []string { return s.names }
func (s *stubClassifier) TypeName() string       { return s.typeName }

func (s *stubClassifier) steps() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, len(s.inputs))
	for i, x := range s.inputs {
		out[i] = x[0]
	}
	return out
}

func validTx() features.Transaction {
	return features.Transaction{
		Type:           features.TypeTransfer,
		Amount:         181,
		OldBalanceOrig: 181,
		NewBalanceOrig: 0,
		OldBalanceDest: 0,
		NewBalanceDest: 0,
	}
}

// ---------------------------------------------------------------------------
// Confidence policy
// ---------------------------------------------------------------------------

func TestConfidenceFor(t *testing.T) {
	tests := []struct {
		p    float64
		want Confidence
	}{
		{0.85, ConfidenceHigh},
		{0.5, ConfidenceLow},
		{0.7, ConfidenceMedium},
		{0.1, ConfidenceHigh},
		{0.3, ConfidenceMedium},
		{0.4, ConfidenceLow},
		{0.6, ConfidenceLow},
		{0.8, ConfidenceMedium},
		{0.2, ConfidenceMedium},
		{0.0, ConfidenceHigh},
		{1.0, ConfidenceHigh},
		{0.8000001, ConfidenceHigh},
		{0.1999999, ConfidenceHigh},
		{0.6000001, ConfidenceMedium},
		{0.3999999, ConfidenceMedium},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ConfidenceFor(tt.p), "p=%v", tt.p)
	}
}

// ---------------------------------------------------------------------------
// Predict
// ---------------------------------------------------------------------------

func TestPredict_Success(t *testing.T) {
	stub := newStub(0.93)
	svc := NewService(stub, sequence.New())

	res, err := svc.Predict(context.Background(), validTx())
	require.NoError(t, err)

	assert.True(t, res.IsFraud)
	assert.Equal(t, 0.93, res.FraudProbability)
	assert.Equal(t, ConfidenceHigh, res.Confidence)

	require.Len(t, stub.inputs, 1)
	assert.Equal(t, []float64{1, 181, 181, 0, 0, 0, 0, 0, 0, 0, 1}, stub.inputs[0])
}

func TestPredict_LegitLowConfidence(t *testing.T) {
	svc := NewService(newStub(0.45), nil)

	res, err := svc.Predict(context.Background(), validTx())
	require.NoError(t, err)
	assert.False(t, res.IsFraud)
	assert.Equal(t, ConfidenceLow, res.Confidence)
}

func TestPredict_SequentialSteps(t *testing.T) {
	stub := newStub(0.1)
	svc := NewService(stub, sequence.New())

	for i := 0; i < 3; i++ {
		_, err := svc.Predict(context.Background(), validTx())
		require.NoError(t, err)
	}

	steps := stub.steps()
	require.Len(t, steps, 3)
	assert.Equal(t, steps[0]+1, steps[1])
	assert.Equal(t, steps[1]+1, steps[2])
	assert.Equal(t, uint64(3), svc.Sequence())
}

func TestPredict_InvalidTypeRejectedWithoutConsumingSequence(t *testing.T) {
	stub := newStub(0.9)
	svc := NewService(stub, sequence.New())

	for _, typ := range []features.TransactionType{"CASH_IN", "BOGUS", "", "transfer"} {
		tx := validTx()
		tx.Type = typ

		res, err := svc.Predict(context.Background(), tx)
		require.Error(t, err, "type %q", typ)
		assert.Nil(t, res)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Contains(t, err.Error(), "CASH_OUT")
	}

	assert.Equal(t, uint64(0), svc.Sequence())
	assert.Empty(t, stub.inputs)
}

func TestPredict_FlagDefaultsToZero(t *testing.T) {
	stub := newStub(0.1)
	svc := NewService(stub, nil)

	_, err := svc.Predict(context.Background(), validTx())
	require.NoError(t, err)
	assert.Equal(t, 0.0, stub.inputs[0][6])

	tx := validTx()
	tx.IsFlaggedFraud = 1
	_, err = svc.Predict(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, stub.inputs[1][6])
}

func TestPredict_NoClassifier(t *testing.T) {
	svc := NewService(nil, sequence.New())
	assert.False(t, svc.Ready())

	_, err := svc.Predict(context.Background(), validTx())
	assert.ErrorIs(t, err, ErrInferenceUnavailable)
	// the request was well-formed, so it still consumed a number
	assert.Equal(t, uint64(1), svc.Sequence())
}

func TestPredict_FeatureMismatch(t *testing.T) {
	stub := newStub(0.9)
	stub.width = 12
	svc := NewService(stub, nil)

	_, err := svc.Predict(context.Background(), validTx())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFeatureMismatch)
	assert.Contains(t, err.Error(), "got 11, expected 12")
	assert.Empty(t, stub.inputs)
}

func TestPredict_ClassifierErrors(t *testing.T) {
	boom := errors.New("boom")

	t.Run("predict", func(t *testing.T) {
		stub := newStub(0.5)
		stub.predictErr = boom
		_, err := NewService(stub, nil).Predict(context.Background(), validTx())
		assert.ErrorIs(t, err, ErrInference)
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("predict_proba", func(t *testing.T) {
		stub := newStub(0.5)
		stub.probaErr = boom
		_, err := NewService(stub, nil).Predict(context.Background(), validTx())
		assert.ErrorIs(t, err, ErrInference)
	})

	t.Run("short proba", func(t *testing.T) {
		stub := newStub(0.5)
		stub.shortProba = true
		_, err := NewService(stub, nil).Predict(context.Background(), validTx())
		assert.ErrorIs(t, err, ErrInference)
	})
}

func TestPredict_ConcurrentSequenceNumbers(t *testing.T) {
	const n = 200

	stub := newStub(0.3)
	counter := sequence.New()
	counter.Next()
	counter.Next()
	before := counter.Current()
	svc := NewService(stub, counter)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := svc.Predict(context.Background(), validTx())
			return err
		})
	}
	require.NoError(t, g.Wait())

	steps := stub.steps()
	require.Len(t, steps, n)
	sort.Float64s(steps)
	for i, s := range steps {
		assert.Equal(t, float64(before)+float64(i)+1, s)
	}
}

// ---------------------------------------------------------------------------
// Describe / Capabilities
// ---------------------------------------------------------------------------

func TestDescribe(t *testing.T) {
	stub := newStub(0.5)
	stub.names = features.FeatureNames()

	info, err := NewService(stub, nil).Describe()
	require.NoError(t, err)
	assert.Equal(t, "StubClassifier", info.ModelType)
	assert.Equal(t, 11, info.NFeatures)
	assert.Equal(t, features.FeatureNames(), info.FeatureNames)
	assert.Equal(t, "isFlaggedFraud defaults to 0 if not provided", info.Note)
}

func TestDescribe_NoNamesIsEmptyNotNil(t *testing.T) {
	info, err := NewService(newStub(0.5), nil).Describe()
	require.NoError(t, err)
	assert.NotNil(t, info.FeatureNames)
	assert.Empty(t, info.FeatureNames)
}

func TestDescribe_NoClassifier(t *testing.T) {
	_, err := NewService(nil, nil).Describe()
	assert.ErrorIs(t, err, ErrInferenceUnavailable)
}

func TestAPIDescriptor(t *testing.T) {
	c := APIDescriptor()
	assert.Equal(t, "Fraud Detection API", c.Message)
	assert.Equal(t, "running", c.Status)
	assert.Len(t, c.RequiredFields, 6)
	assert.Equal(t, []string{"isFlaggedFraud (defaults to 0)"}, c.OptionalFields)
	assert.Equal(t, []string{"CASH_OUT", "DEBIT", "PAYMENT", "TRANSFER"}, c.ValidTypes)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "validation", errorKind(ErrValidation))
	assert.Equal(t, "unavailable", errorKind(ErrInferenceUnavailable))
	assert.Equal(t, "feature_mismatch", errorKind(ErrFeatureMismatch))
	assert.Equal(t, "inference", errorKind(errors.New("other")))
}
