// Package classify assigns a garment category and type to a processed
// image by scoring it against a fixed set of natural-language prompts
// with an external zero-shot scorer, and rejects images that likely
// contain more than one garment.
package classify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Saisurya114/wardrobe-backend/internal/model"
)

// Labels are the zero-shot prompts scored against each image.
var Labels = []string{
	"a photo of a shirt",
	"a photo of a t-shirt",
	"a photo of a pants",
	"a photo of a shorts",
	"a photo of a shoes",
	"a photo of a accessories",
}

// Multi-garment rejection thresholds: an image is ambiguous when the top
// score is confident, the runner-up is also plausible, and they are close.
const (
	PrimaryConfidenceThreshold   = 0.50
	SecondaryConfidenceThreshold = 0.30
	MaxConfidenceDiff            = 0.20
)

// scoreEpsilon absorbs float64 noise in the gap comparison, so a gap of
// exactly MaxConfidenceDiff (e.g. 0.55 vs 0.35) still rejects.
const scoreEpsilon = 1e-9

// Candidate is a label with its score from the zero-shot scorer.
type Candidate struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Scorer scores an image against a set of natural-language labels.
// Implementations are opaque model providers; the classifier owns all
// thresholding and mapping.
type Scorer interface {
	ScoreLabels(ctx context.Context, imagePNG []byte, labels []string) ([]Candidate, error)
}

// MultiGarmentError reports an ambiguous image whose top two labels are
// both plausible. It carries both candidates so callers can explain the
// rejection to the user.
type MultiGarmentError struct {
	Top    Candidate
	Second Candidate
}

func (e *MultiGarmentError) Error() string {
	return fmt.Sprintf("multi-garment image detected: top %q (%.2f), second %q (%.2f)",
		e.Top.Label, e.Top.Score, e.Second.Label, e.Second.Score)
}

// Result is a classified garment type with its winning label and score.
type Result struct {
	Category   string
	Type       string
	Label      string
	Confidence float64
}

// Classifier classifies garment images through a Scorer.
type Classifier struct {
	scorer Scorer
}

// New creates a Classifier backed by the given scorer.
func New(scorer Scorer) *Classifier {
	return &Classifier{scorer: scorer}
}

// Classify scores the image against all labels, applies multi-garment
// rejection, and maps the winning label to a category/type pair.
func (c *Classifier) Classify(ctx context.Context, imagePNG []byte) (*Result, error) {
	scored, err := c.scorer.ScoreLabels(ctx, imagePNG, Labels)
	if err != nil {
		return nil, fmt.Errorf("scoring labels: %w", err)
	}
	if len(scored) < 2 {
		return nil, fmt.Errorf("scorer returned %d candidates, need at least 2", len(scored))
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	top, second := scored[0], scored[1]

	if top.Score >= PrimaryConfidenceThreshold &&
		second.Score >= SecondaryConfidenceThreshold &&
		top.Score-second.Score <= MaxConfidenceDiff+scoreEpsilon {
		return nil, &MultiGarmentError{Top: top, Second: second}
	}

	category, typ := MapLabel(top.Label)
	return &Result{
		Category:   category,
		Type:       typ,
		Label:      top.Label,
		Confidence: top.Score,
	}, nil
}

// MapLabel maps a prompt label to an inventory (category, type) pair via
// substring rules. "t-shirt" must be checked before the bare "shirt"
// substring so t-shirts are not misclassified as shirts. Unrecognized
// labels map to unknown rather than failing.
func MapLabel(label string) (category, typ string) {
	switch {
	case strings.Contains(label, "shirt") && !strings.Contains(label, "t-shirt"):
		return model.CategoryTopwear, "shirt"
	case strings.Contains(label, "t-shirt"):
		return model.CategoryTopwear, "tshirt"
	case strings.Contains(label, "pants"):
		return model.CategoryBottomwear, "pants"
	case strings.Contains(label, "shorts"):
		return model.CategoryBottomwear, "shorts"
	case strings.Contains(label, "shoes"):
		return model.CategoryFootwear, "shoes"
	case strings.Contains(label, "accessories"):
		return model.CategoryAccessories, "accessories"
	}
	return model.CategoryUnknown, model.ValueUnknown
}
