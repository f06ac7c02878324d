package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Brownie44l1/whatsapple-api/internal/config"
	"github.com/Brownie44l1/whatsapple-api/internal/identify"
	"github.com/Brownie44l1/whatsapple-api/internal/logging"
	"github.com/Brownie44l1/whatsapple-api/internal/model"
	"github.com/Brownie44l1/whatsapple-api/internal/varieties"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	modelFlag    string
	metadataFlag string
)

var rootCmd = &cobra.Command{
	Use:   "whatsapple",
	Short: "Identify apple varieties from photos",
	Long: `whatsapple classifies photos of apples with the bundled model and prints the
predicted variety with a short description.

It knows ten varieties (Braeburn, Crispin, Fuji, Gala, Golden Delicious,
Granny Smith, Honeycrisp, McIntosh, Pink Lady, Red Delicious) and can tell the
Apple logo from an actual apple.

Examples:
  whatsapple identify apple.jpg
  whatsapple identify photos/*.jpg --model models/apple.onnx
  whatsapple varieties`,
	SilenceUsage: true,
}

var identifyCmd = &cobra.Command{
	Use:   "identify <image>...",
	Short: "Classify one or more photos",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIdentify,
}

var varietiesCmd = &cobra.Command{
	Use:   "varieties",
	Short: "List the varieties the model knows",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printVarieties(cmd.OutOrStdout())
	},
}

func init() {
	identifyCmd.Flags().StringVar(&modelFlag, "model", "", "Path to the ONNX classifier")
	identifyCmd.Flags().StringVar(&metadataFlag, "metadata", "", "Path to the classifier metadata JSON")
	rootCmd.AddCommand(identifyCmd, varietiesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runIdentify(cmd *cobra.Command, args []string) error {
	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if modelFlag != "" {
		cfg.ModelPath = modelFlag
	}
	if metadataFlag != "" {
		cfg.MetadataPath = metadataFlag
	}

	modelServer, err := model.NewServer(cfg.ModelPath, cfg.MetadataPath)
	if err != nil {
		return fmt.Errorf("failed to load classifier: %w", err)
	}
	defer modelServer.Close()

	svc := identify.NewService(modelServer, modelServer.Metadata.ImageSize)
	out := cmd.OutOrStdout()

	var failed int
	for _, path := range args {
		if err := identifyFile(cmd.Context(), svc, out, path); err != nil {
			log.Error().Err(err).Str("path", path).Msg("Identification failed")
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d images could not be classified", failed, len(args))
	}
	return nil
}

func identifyFile(ctx context.Context, svc *identify.Service, out io.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	fmt.Fprintf(out, "== %s\n", filepath.Base(path))

	result, err := svc.Identify(ctx, data)
	if err != nil {
		fmt.Fprintln(out, identify.FailureMessage(err))
		fmt.Fprintln(out)
		return err
	}

	printIdentification(out, result)
	return nil
}

func printIdentification(out io.Writer, result *identify.Identification) {
	fmt.Fprintln(out, result.Summary)
	fmt.Fprintln(out)
	fmt.Fprintln(out, result.Variety.Name)
	fmt.Fprintln(out, result.Variety.Description)
	if result.Variety.ImageAsset != "" {
		fmt.Fprintf(out, "Reference photo: %s\n", result.Variety.ImageAsset)
	}
	fmt.Fprintln(out)
}

func printVarieties(out io.Writer) {
	for _, v := range varieties.All() {
		fmt.Fprintf(out, "%-18s %s\n", v.Name, v.Description)
	}
}
