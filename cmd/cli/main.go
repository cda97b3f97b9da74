package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ops-tools/remedia/pkg/app"
	"github.com/ops-tools/remedia/pkg/services/config"
)

var (
	cfgPath   string
	batchPath string
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "remedia",
		Short: "Process a batch of security findings",
		RunE:  runBatch,
	}

	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "remedia.yaml",
		"Path to the orchestrator config file")
	rootCmd.Flags().StringVarP(&batchPath, "batch", "b", "",
		"Path to a JSON file with the findings batch (reads stdin when omitted)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// batchFile accepts either the EventBridge envelope ({"detail": {"findings":
// [...]}}) or a bare {"findings": [...]} document.
type batchFile struct {
	Detail struct {
		Findings []json.RawMessage `json:"findings"`
	} `json:"detail"`
	Findings []json.RawMessage `json:"findings"`
}

func runBatch(cmd *cobra.Command, _ []string) error {
	// .env is optional for the CLI.
	_ = godotenv.Load()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	ctx := logger.WithContext(cmd.Context())

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var data []byte
	if batchPath == "" {
		data, err = os.ReadFile("/dev/stdin")
	} else {
		data, err = os.ReadFile(batchPath)
	}
	if err != nil {
		return fmt.Errorf("failed to read batch: %w", err)
	}

	var batch batchFile
	if err := json.Unmarshal(data, &batch); err != nil {
		return fmt.Errorf("failed to parse batch: %w", err)
	}
	findings := batch.Findings
	if len(findings) == 0 {
		findings = batch.Detail.Findings
	}
	if len(findings) == 0 {
		return fmt.Errorf("no findings in batch")
	}

	o, err := app.BuildOrchestrator(ctx, cfg)
	if err != nil {
		return err
	}

	summary, err := o.ProcessBatch(ctx, findings)
	if err != nil {
		return fmt.Errorf("batch aborted: %w", err)
	}

	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(out))
	return nil
}
