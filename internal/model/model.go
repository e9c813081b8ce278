// Package model loads pre-trained binary classifiers from portable artifact
// files and runs inference on dense feature vectors.
//
// Artifacts mirror the attributes scikit-learn estimators expose after
// fitting (n_features_in_, feature_names_in_, classes_, coef_/intercept_,
// tree_ node arrays), so an exporter only has to dump those fields.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the gateway looks for its artifact when no path is
// configured.
const DefaultPath = "models/fraud_detection_model.json"

// Supported model types.
const (
	TypeLogisticRegression = "LogisticRegression"
	TypeDecisionTree       = "DecisionTreeClassifier"
	TypeRandomForest       = "RandomForestClassifier"
)

var (
	ErrNotFound        = errors.New("model: artifact not found")
	ErrInvalidArtifact = errors.New("model: invalid artifact")
	ErrWidth           = errors.New("model: input width mismatch")
)

// Classifier is a fitted binary classifier. Implementations are immutable
// after construction and safe for concurrent use.
type Classifier interface {
	// Predict returns the predicted class label for x.
	Predict(x []float64) (int, error)
	// PredictProba returns one probability per class, in Classes order.
	PredictProba(x []float64) ([]float64, error)
	// NFeatures is the input width the classifier was fitted on.
	NFeatures() int
	// FeatureNames returns the fitted column names, or nil when unknown.
	FeatureNames() []string
	// TypeName is the estimator's implementation name.
	TypeName() string
}

// Artifact is the on-disk form of a fitted classifier.
type Artifact struct {
	ModelType    string     `json:"model_type" yaml:"model_type"`
	NFeaturesIn  int        `json:"n_features_in" yaml:"n_features_in"`
	FeatureNames []string   `json:"feature_names_in,omitempty" yaml:"feature_names_in,omitempty"`
	Classes      []int      `json:"classes,omitempty" yaml:"classes,omitempty"`
	Coef         []float64  `json:"coef,omitempty" yaml:"coef,omitempty"`
	Intercept    float64    `json:"intercept,omitempty" yaml:"intercept,omitempty"`
	Trees        []TreeSpec `json:"trees,omitempty" yaml:"trees,omitempty"`
}

// TreeSpec holds one fitted tree as parallel node arrays. A node is a leaf
// when ChildrenLeft is -1; otherwise samples with
// x[Feature] <= Threshold go left.
type TreeSpec struct {
	ChildrenLeft  []int       `json:"children_left" yaml:"children_left"`
	ChildrenRight []int       `json:"children_right" yaml:"children_right"`
	Feature       []int       `json:"feature" yaml:"feature"`
	Threshold     []float64   `json:"threshold" yaml:"threshold"`
	Value         [][]float64 `json:"value" yaml:"value"`
}

// LoadFile reads and builds the artifact at path. The format is chosen by
// extension: .yaml/.yml is YAML, anything else JSON.
func LoadFile(path string) (Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read model artifact: %w", err)
	}

	var a Artifact
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &a)
	default:
		err = json.Unmarshal(data, &a)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidArtifact, path, err)
	}

	return Build(&a)
}

// Build validates a and returns the classifier it describes.
func Build(a *Artifact) (Classifier, error) {
	if a.NFeaturesIn <= 0 {
		return nil, fmt.Errorf("%w: n_features_in must be positive", ErrInvalidArtifact)
	}
	if len(a.FeatureNames) != 0 && len(a.FeatureNames) != a.NFeaturesIn {
		return nil, fmt.Errorf("%w: %d feature names for %d features", ErrInvalidArtifact, len(a.FeatureNames), a.NFeaturesIn)
	}

	classes := a.Classes
	if len(classes) == 0 {
		classes = []int{0, 1}
	}
	if len(classes) != 2 {
		return nil, fmt.Errorf("%w: binary classifier needs 2 classes, got %d", ErrInvalidArtifact, len(classes))
	}

	m := meta{
		typeName:  a.ModelType,
		nFeatures: a.NFeaturesIn,
		names:     append([]string(nil), a.FeatureNames...),
		classes:   append([]int(nil), classes...),
	}

	switch a.ModelType {
	case TypeLogisticRegression:
		return newLogistic(m, a.Coef, a.Intercept)
	case TypeDecisionTree:
		if len(a.Trees) != 1 {
			return nil, fmt.Errorf("%w: %s needs exactly 1 tree, got %d", ErrInvalidArtifact, a.ModelType, len(a.Trees))
		}
		return newForest(m, a.Trees)
	case TypeRandomForest:
		if len(a.Trees) == 0 {
			return nil, fmt.Errorf("%w: %s has no trees", ErrInvalidArtifact, a.ModelType)
		}
		return newForest(m, a.Trees)
	case "":
		return nil, fmt.Errorf("%w: model_type is required", ErrInvalidArtifact)
	default:
		return nil, fmt.Errorf("%w: unsupported model_type %q", ErrInvalidArtifact, a.ModelType)
	}
}

// meta carries the attributes every estimator shares.
type meta struct {
	typeName  string
	nFeatures int
	names     []string
	classes   []int
}

func (m meta) NFeatures() int   { return m.nFeatures }
func (m meta) TypeName() string { return m.typeName }

func (m meta) FeatureNames() []string {
	if len(m.names) == 0 {
		return nil
	}
	return append([]string(nil), m.names...)
}

func (m meta) checkWidth(x []float64) error {
	if len(x) != m.nFeatures {
		return fmt.Errorf("%w: got %d, expected %d", ErrWidth, len(x), m.nFeatures)
	}
	return nil
}

// label maps class probabilities to a class label. Ties resolve to the
// first class.
func (m meta) label(proba []float64) int {
	best := 0
	for i := 1; i < len(proba); i++ {
		if proba[i] > proba[best] {
			best = i
		}
	}
	return m.classes[best]
}
