// Package identify runs one classification cycle: prepare the photo, classify
// it, take the top-1 label and look it up in the variety table.
package identify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Brownie44l1/whatsapple-api/internal/imaging"
	"github.com/Brownie44l1/whatsapple-api/internal/model"
	"github.com/Brownie44l1/whatsapple-api/internal/varieties"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// TopN is how many ranked labels are reported with an identification.
const TopN = 3

const (
	// NothingRecognized is shown when the classifier returns no labels.
	NothingRecognized = "Nothing recognized."
	unableToClassify  = "Unable to classify image."
)

// ErrNothingRecognized is returned when the classifier produced no labels.
var ErrNothingRecognized = errors.New("nothing recognized")

// Classifier ranks the labels for one prepared input tensor.
type Classifier interface {
	Classify(ctx context.Context, input []float32) ([]model.Classification, error)
}

// Identification is the outcome of one classification cycle.
type Identification struct {
	ID         string                 `json:"id"`
	Recognized bool                   `json:"recognized"`
	Variety    varieties.Variety      `json:"variety"`
	Top        []model.Classification `json:"top"`
	Summary    string                 `json:"summary"`
	Format     string                 `json:"format,omitempty"`
	Elapsed    time.Duration          `json:"elapsed_ns"`
}

// Service ties a classifier to the variety table.
type Service struct {
	classifier Classifier
	imageSize  int
}

// NewService returns a Service that prepares photos at imageSize×imageSize.
func NewService(classifier Classifier, imageSize int) *Service {
	return &Service{classifier: classifier, imageSize: imageSize}
}

// Identify classifies an encoded photo.
func (s *Service) Identify(ctx context.Context, data []byte) (*Identification, error) {
	start := time.Now()

	input, frame, err := imaging.Prepare(data, s.imageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image: %w", err)
	}

	id, err := s.identify(ctx, input)
	if err != nil {
		return nil, err
	}
	id.Format = frame.Format
	id.Elapsed = time.Since(start)
	return id, nil
}

// Predict classifies an already prepared input tensor and reports every
// class score in the raw prediction shape.
func (s *Service) Predict(ctx context.Context, input []float32) (*model.PredictionResponse, error) {
	ranked, err := s.classifier.Classify(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}
	if len(ranked) == 0 {
		return nil, ErrNothingRecognized
	}
	return model.NewPredictionResponse(ranked), nil
}

func (s *Service) identify(ctx context.Context, input []float32) (*Identification, error) {
	ranked, err := s.classifier.Classify(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}
	if len(ranked) == 0 {
		return nil, ErrNothingRecognized
	}

	top := ranked[:min(TopN, len(ranked))]
	variety, ok := varieties.Lookup(top[0].Label)

	result := &Identification{
		ID:         uuid.NewString(),
		Recognized: ok,
		Variety:    variety,
		Top:        append([]model.Classification(nil), top...),
		Summary:    Summary(top),
	}

	event := log.Info()
	if !ok {
		event = log.Warn()
	}
	event.
		Str("id", result.ID).
		Str("label", top[0].Label).
		Float32("confidence", top[0].Confidence).
		Bool("recognized", ok).
		Msg("Image classified")

	return result, nil
}

// Summary renders ranked labels the way they are shown to the user:
//
//	Classification:
//	  (0.87) Fuji
//	  (0.05) Gala
func Summary(ranked []model.Classification) string {
	if len(ranked) == 0 {
		return NothingRecognized
	}
	lines := make([]string, 0, len(ranked)+1)
	lines = append(lines, "Classification:")
	for _, c := range ranked {
		lines = append(lines, fmt.Sprintf("  (%.2f) %s", c.Confidence, c.Label))
	}
	return strings.Join(lines, "\n")
}

// FailureMessage is the user-facing text for a failed cycle.
func FailureMessage(err error) string {
	if errors.Is(err, ErrNothingRecognized) {
		return NothingRecognized
	}
	return unableToClassify + "\n" + err.Error()
}
