package exporter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"sfcli/internal/validation"
)

// SaveMetrics writes any metrics value as indented JSON, creating parent
// directories as needed
func SaveMetrics(filePath string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}

	slog.Info("Saved metrics", slog.String("file_path", filePath), slog.Int("bytes", len(data)))
	return nil
}

// LoadCVResult reads back a cross-validation report saved by SaveMetrics
func LoadCVResult(filePath string) (*validation.CVResult, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics file: %w", err)
	}

	var result validation.CVResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse metrics file: %w", err)
	}
	return &result, nil
}
