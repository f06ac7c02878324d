package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Brownie44l1/whatsapple-api/internal/config"
	"github.com/Brownie44l1/whatsapple-api/internal/handlers"
	"github.com/Brownie44l1/whatsapple-api/internal/identify"
	"github.com/Brownie44l1/whatsapple-api/internal/logging"
	"github.com/Brownie44l1/whatsapple-api/internal/model"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	portFlag     string
	modelFlag    string
	metadataFlag string
	assetsFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "whatsapple-server",
	Short: "HTTP API that identifies apple varieties from photos",
	Long: `whatsapple-server loads the apple classifier and serves it over HTTP.

Upload a photo of an apple and the server answers with the predicted variety,
a short description and a link to a reference photo.

Examples:
  whatsapple-server
  whatsapple-server --port 9000 --model models/apple.onnx --metadata models/apple.json
  curl -X POST -F "image=@apple.jpg" http://localhost:8080/predict/image`,
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	rootCmd.Flags().StringVarP(&portFlag, "port", "p", "", "Port to listen on (default $PORT or 8080)")
	rootCmd.Flags().StringVar(&modelFlag, "model", "", "Path to the ONNX classifier")
	rootCmd.Flags().StringVar(&metadataFlag, "metadata", "", "Path to the classifier metadata JSON")
	rootCmd.Flags().StringVar(&assetsFlag, "assets", "", "Directory holding the variety reference photos")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if portFlag != "" {
		cfg.Port = portFlag
	}
	if modelFlag != "" {
		cfg.ModelPath = modelFlag
	}
	if metadataFlag != "" {
		cfg.MetadataPath = metadataFlag
	}
	if assetsFlag != "" {
		cfg.AssetsDir = assetsFlag
	}
	return cfg, nil
}

func runServer(cmd *cobra.Command, args []string) error {
	logging.Init()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log.Info().Str("model", cfg.ModelPath).Msg("Loading model")

	modelServer, err := model.NewServer(cfg.ModelPath, cfg.MetadataPath)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize model server")
		return err
	}
	defer modelServer.Close()

	svc := identify.NewService(modelServer, modelServer.Metadata.ImageSize)
	handler := handlers.NewHandler(svc, handlers.Options{
		InputSize: modelServer.Metadata.InputSize(),
		AssetsDir: cfg.AssetsDir,
		MaxUpload: cfg.MaxUploadBytes,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handlers.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Graceful shutdown failed")
		}
	}()

	log.Info().
		Str("port", cfg.Port).
		Strs("classes", modelServer.Metadata.Classes).
		Msg("Server starting")
	log.Info().Msg("Endpoints:")
	log.Info().Msg("  GET  /health                 - Health check")
	log.Info().Msg("  POST /predict                - Raw array prediction")
	log.Info().Msg("  POST /predict/image          - Identify an apple from an image upload")
	log.Info().Msg("  GET  /varieties              - Known varieties")
	log.Info().Msg("  GET  /varieties/{slug}       - One variety")
	log.Info().Msg("  GET  /varieties/{slug}/image - Reference photo")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Server failed")
		return err
	}

	log.Info().Msg("Server stopped")
	return nil
}
