package model

// Metadata describes the exported classifier. It is read from the JSON
// sidecar written next to the .onnx file at export time.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	InputName   string   `json:"input_name,omitempty"`
	OutputName  string   `json:"output_name,omitempty"`
	// Softmax is set when the model emits logits rather than probabilities.
	Softmax bool `json:"softmax,omitempty"`
}

// InputSize is the number of float32 values one inference consumes.
func (m Metadata) InputSize() int {
	if len(m.InputShape) == 0 {
		return 0
	}
	n := 1
	for _, dim := range m.InputShape {
		n *= int(dim)
	}
	return n
}

// Classification is one (label, confidence) pair from the classifier.
type Classification struct {
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
}

type PredictionRequest struct {
	Image []float32 `json:"image"`
}

type PredictionResponse struct {
	Class       string             `json:"class"`
	Confidence  float32            `json:"confidence"`
	Predictions map[string]float32 `json:"predictions"`
}
