package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Artifact file names looked up by Load.
const (
	VectorizerFile = "tfidf_vectorizer.json"
	ClassifierFile = "scam_classifier.json"
)

var errInvalidArtifact = errors.New("invalid model artifact")

// tokenPattern keeps tokens of two or more word characters.
var tokenPattern = regexp.MustCompile(`\w\w+`)

// Vectorizer turns text into an L2-normalised TF-IDF vector.
type Vectorizer struct {
	Vocabulary  map[string]int `json:"vocabulary"`
	IDF         []float64      `json:"idf"`
	NgramRange  [2]int         `json:"ngram_range"`
	Lowercase   bool           `json:"lowercase"`
	SublinearTF bool           `json:"sublinear_tf"`
}

// LogisticModel is a binary logistic classifier over vectorizer features.
type LogisticModel struct {
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
}

// Validate checks that every vocabulary index has an IDF entry.
func (v *Vectorizer) Validate() error {
	if len(v.Vocabulary) == 0 || len(v.IDF) == 0 {
		return fmt.Errorf("%w: empty vocabulary", errInvalidArtifact)
	}
	for term, idx := range v.Vocabulary {
		if idx < 0 || idx >= len(v.IDF) {
			return fmt.Errorf("%w: term %q index %d out of range", errInvalidArtifact, term, idx)
		}
	}
	if v.NgramRange[0] <= 0 {
		v.NgramRange[0] = 1
	}
	if v.NgramRange[1] < v.NgramRange[0] {
		v.NgramRange[1] = v.NgramRange[0]
	}
	return nil
}

// Transform returns the sparse feature vector for text.
func (v *Vectorizer) Transform(text string) map[int]float64 {
	if v.Lowercase {
		text = strings.ToLower(text)
	}
	tokens := tokenPattern.FindAllString(text, -1)

	counts := make(map[int]float64)
	for n := v.NgramRange[0]; n <= v.NgramRange[1]; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			gram := strings.Join(tokens[i:i+n], " ")
			if idx, ok := v.Vocabulary[gram]; ok {
				counts[idx]++
			}
		}
	}

	var norm float64
	for idx, tf := range counts {
		if v.SublinearTF {
			tf = 1 + math.Log(tf)
		}
		w := tf * v.IDF[idx]
		counts[idx] = w
		norm += w * w
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for idx := range counts {
			counts[idx] /= norm
		}
	}
	return counts
}

// Predict returns the positive-class probability for a feature vector.
func (m *LogisticModel) Predict(features map[int]float64) float64 {
	z := m.Intercept
	for idx, x := range features {
		z += m.Weights[idx] * x
	}
	return 1 / (1 + math.Exp(-z))
}

// Load returns a ModelBacked classifier when both artifacts in dir are present
// and valid, and the Heuristic otherwise. Failures are logged, never returned.
func Load(dir string, logger *slog.Logger) Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	v, m, err := loadArtifacts(dir)
	if err != nil {
		logger.Warn("Scam model unavailable, using keyword heuristic", "dir", dir, "error", err)
		return NewHeuristic()
	}
	logger.Info("Scam model loaded", "dir", dir, "features", len(v.IDF))
	return NewModelBacked(v, m, logger)
}

func loadArtifacts(dir string) (*Vectorizer, *LogisticModel, error) {
	var v Vectorizer
	if err := readJSON(filepath.Join(dir, VectorizerFile), &v); err != nil {
		return nil, nil, err
	}
	if err := v.Validate(); err != nil {
		return nil, nil, fmt.Errorf("vectorizer: %w", err)
	}

	var m LogisticModel
	if err := readJSON(filepath.Join(dir, ClassifierFile), &m); err != nil {
		return nil, nil, err
	}
	if len(m.Weights) != len(v.IDF) {
		return nil, nil, fmt.Errorf("%w: classifier has %d weights, vectorizer %d features",
			errInvalidArtifact, len(m.Weights), len(v.IDF))
	}
	return &v, &m, nil
}

func readJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
