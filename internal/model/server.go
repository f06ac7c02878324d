package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	// ErrInputSize is returned when an input does not match the model's input shape.
	ErrInputSize = errors.New("input size does not match model")
	// ErrInvalidMetadata is returned by LoadMetadata for an unusable sidecar.
	ErrInvalidMetadata = errors.New("invalid model metadata")
)

// Server owns an ONNX Runtime session and its bound tensors. The tensors are
// shared, so only one inference runs at a time.
type Server struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	Metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// LoadMetadata reads and validates the metadata sidecar.
func LoadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}
	return ParseMetadata(raw)
}

// ParseMetadata decodes a metadata document and fills in default tensor names.
func ParseMetadata(raw []byte) (Metadata, error) {
	var metadata Metadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}

	switch {
	case len(metadata.Classes) == 0:
		return Metadata{}, fmt.Errorf("%w: no classes", ErrInvalidMetadata)
	case metadata.InputSize() == 0:
		return Metadata{}, fmt.Errorf("%w: empty input shape", ErrInvalidMetadata)
	case len(metadata.OutputShape) == 0:
		return Metadata{}, fmt.Errorf("%w: empty output shape", ErrInvalidMetadata)
	case metadata.ImageSize <= 0:
		return Metadata{}, fmt.Errorf("%w: image_size must be positive", ErrInvalidMetadata)
	}

	if metadata.InputName == "" {
		metadata.InputName = "input"
	}
	if metadata.OutputName == "" {
		metadata.OutputName = "output"
	}
	return metadata, nil
}

func NewServer(modelPath, metadataPath string) (*Server, error) {
	metadata, err := LoadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputShape := ort.NewShape(metadata.InputShape...)
	outputShape := ort.NewShape(metadata.OutputShape...)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	log.Info().
		Str("model", modelPath).
		Strs("classes", metadata.Classes).
		Int("image_size", metadata.ImageSize).
		Msg("Classifier loaded")

	return &Server{
		session:      session,
		Metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Classify runs one inference and returns every class ranked by confidence,
// highest first.
func (s *Server) Classify(ctx context.Context, inputData []float32) ([]Classification, error) {
	if want := s.Metadata.InputSize(); len(inputData) != want {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrInputSize, want, len(inputData))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	copy(s.inputTensor.GetData(), inputData)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	return Rank(s.outputTensor.GetData(), s.Metadata.Classes, s.Metadata.Softmax), nil
}

// NewPredictionResponse collapses a ranked list into the raw prediction shape.
func NewPredictionResponse(ranked []Classification) *PredictionResponse {
	resp := &PredictionResponse{Predictions: make(map[string]float32, len(ranked))}
	for _, c := range ranked {
		resp.Predictions[c.Label] = c.Confidence
	}
	if len(ranked) > 0 {
		resp.Class = ranked[0].Label
		resp.Confidence = ranked[0].Confidence
	}
	return resp
}

// Rank pairs model outputs with class names and sorts them by confidence.
// Outputs beyond the class list are ignored. Equal scores keep class order.
func Rank(outputs []float32, classes []string, softmax bool) []Classification {
	n := min(len(outputs), len(classes))
	scores := outputs[:n]
	if softmax {
		scores = applySoftmax(scores)
	}

	ranked := make([]Classification, n)
	for i := 0; i < n; i++ {
		ranked[i] = Classification{Label: classes[i], Confidence: scores[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})
	return ranked
}

func applySoftmax(logits []float32) []float32 {
	out := make([]float32, len(logits))
	if len(logits) == 0 {
		return out
	}

	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}

	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxVal))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
	ort.DestroyEnvironment()
}
