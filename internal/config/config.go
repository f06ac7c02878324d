// Package config resolves server settings from the environment. Command-line
// flags are applied on top by the commands in cmd/.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultPort   = "8080"
	MaxUploadSize = 10 << 20
)

// Config holds everything needed to start the classifier.
type Config struct {
	Port         string
	ModelPath    string
	MetadataPath string
	AssetsDir    string
	// MaxUploadBytes bounds the multipart form parsed per request.
	MaxUploadBytes int64
}

// Load reads PORT, WHATSAPPLE_MODEL, WHATSAPPLE_METADATA, WHATSAPPLE_ASSETS
// and WHATSAPPLE_MAX_UPLOAD. Relative defaults are resolved against the
// project root.
func Load() (Config, error) {
	root, err := ProjectRoot()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:           getenv("PORT", DefaultPort),
		ModelPath:      getenv("WHATSAPPLE_MODEL", filepath.Join(root, "models", "model_embedded.onnx")),
		MetadataPath:   getenv("WHATSAPPLE_METADATA", filepath.Join(root, "models", "model_metadata.json")),
		AssetsDir:      getenv("WHATSAPPLE_ASSETS", filepath.Join(root, "assets")),
		MaxUploadBytes: MaxUploadSize,
	}

	if raw := os.Getenv("WHATSAPPLE_MAX_UPLOAD"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid WHATSAPPLE_MAX_UPLOAD %q", raw)
		}
		cfg.MaxUploadBytes = n
	}

	return cfg, nil
}

// ProjectRoot is the working directory, or two levels up when started from
// cmd/server or cmd/whatsapple.
func ProjectRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	if filepath.Base(filepath.Dir(wd)) == "cmd" {
		return filepath.Clean(filepath.Join(wd, "../..")), nil
	}
	return wd, nil
}

// Addr is the listen address for Port.
func (c Config) Addr() string {
	return ":" + c.Port
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
