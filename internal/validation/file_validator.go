package validation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FileValidator checks the data directories and CSV inputs the pipeline
// reads and writes
type FileValidator struct {
	logger *slog.Logger
}

// NewFileValidator creates a new file validator
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{logger: logger}
}

// ValidateInputDirectory checks that the directory exists and, when a
// pattern is given, contains at least one matching file
func (v *FileValidator) ValidateInputDirectory(dir, requiredPattern string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return fmt.Errorf("input directory %s does not exist", dir)
	}
	if err != nil {
		return fmt.Errorf("stat directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	if requiredPattern != "" {
		matches, err := filepath.Glob(filepath.Join(dir, requiredPattern))
		if err != nil {
			return fmt.Errorf("check for files: %w", err)
		}
		if len(matches) == 0 {
			return fmt.Errorf("no files matching %s in %s", requiredPattern, dir)
		}
		v.logger.Debug("input directory validated",
			slog.String("directory", dir),
			slog.Int("matches", len(matches)))
	}
	return nil
}

// ValidateOutputDirectory ensures the directory exists and is writable,
// creating it if needed
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output directory %s: %w", dir, err)
	}

	probe := filepath.Join(dir, ".write_probe")
	if err := os.WriteFile(probe, nil, 0644); err != nil {
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	os.Remove(probe)
	return nil
}

// ValidateCSVFile checks that the path names a readable, non-empty CSV
func (v *FileValidator) ValidateCSVFile(path string) error {
	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		return fmt.Errorf("%s is not a CSV file", path)
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("file %s does not exist", path)
	}
	if err != nil {
		return fmt.Errorf("stat file %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("file %s is empty", path)
	}
	return nil
}
