package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/Brownie44l1/whatsapple-api/internal/identify"
	"github.com/Brownie44l1/whatsapple-api/internal/imaging"
	"github.com/Brownie44l1/whatsapple-api/internal/model"
	"github.com/Brownie44l1/whatsapple-api/internal/varieties"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// Identifier is the classification cycle the handlers drive.
type Identifier interface {
	Identify(ctx context.Context, data []byte) (*identify.Identification, error)
	Predict(ctx context.Context, input []float32) (*model.PredictionResponse, error)
}

type Handler struct {
	identifier Identifier
	inputSize  int
	assetsDir  string
	maxUpload  int64
}

// Options configures a Handler.
type Options struct {
	InputSize int
	AssetsDir string
	MaxUpload int64
}

func NewHandler(identifier Identifier, opts Options) *Handler {
	if opts.MaxUpload <= 0 {
		opts.MaxUpload = 10 << 20
	}
	return &Handler{
		identifier: identifier,
		inputSize:  opts.InputSize,
		assetsDir:  opts.AssetsDir,
		maxUpload:  opts.MaxUpload,
	}
}

// VarietyResponse is a table record with its links.
type VarietyResponse struct {
	varieties.Variety
	Slug     string `json:"slug"`
	ImageURL string `json:"image_url,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newVarietyResponse(v varieties.Variety) VarietyResponse {
	resp := VarietyResponse{Variety: v, Slug: varieties.Slug(v)}
	if v.ImageAsset != "" {
		resp.ImageURL = "/varieties/" + resp.Slug + "/image"
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Predict classifies a raw, already preprocessed tensor.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUpload))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	var req model.PredictionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if len(req.Image) != h.inputSize {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Expected %d values, got %d", h.inputSize, len(req.Image)))
		return
	}

	result, err := h.identifier.Predict(r.Context(), req.Image)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// PredictFromImage classifies an uploaded photo sent as the "image" field of
// a multipart form.
func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No image file provided. Use 'image' as the form field name")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read image")
		return
	}

	log.Debug().
		Str("request_id", RequestID(r.Context())).
		Str("filename", header.Filename).
		Int64("size", header.Size).
		Msg("Received image")

	result, err := h.identifier.Identify(r.Context(), data)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, imaging.ErrUnsupportedImage), errors.Is(err, model.ErrInputSize):
		status = http.StatusBadRequest
	case errors.Is(err, identify.ErrNothingRecognized):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled):
		// client went away
		return
	}

	log.Error().
		Err(err).
		Str("request_id", RequestID(r.Context())).
		Int("status", status).
		Msg("Classification failed")
	writeError(w, status, identify.FailureMessage(err))
}

func (h *Handler) ListVarieties(w http.ResponseWriter, r *http.Request) {
	all := varieties.All()
	out := make([]VarietyResponse, 0, len(all))
	for _, v := range all {
		out = append(out, newVarietyResponse(v))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetVariety(w http.ResponseWriter, r *http.Request) {
	v, ok := varieties.BySlug(mux.Vars(r)["slug"])
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown variety")
		return
	}
	writeJSON(w, http.StatusOK, newVarietyResponse(v))
}

// VarietyImage serves the bundled reference photo for a variety.
func (h *Handler) VarietyImage(w http.ResponseWriter, r *http.Request) {
	v, ok := varieties.BySlug(mux.Vars(r)["slug"])
	if !ok || v.ImageAsset == "" || h.assetsDir == "" {
		writeError(w, http.StatusNotFound, "No image for variety")
		return
	}

	path := filepath.Join(h.assetsDir, v.ImageAsset)
	if _, err := os.Stat(path); err != nil {
		log.Warn().Err(err).Str("asset", path).Msg("Reference image missing")
		writeError(w, http.StatusNotFound, "No image for variety")
		return
	}
	http.ServeFile(w, r, path)
}
