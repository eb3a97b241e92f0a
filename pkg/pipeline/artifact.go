package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/ktsuji/budgetscan/internal/models"
)

const artifactName = "analysis_results.json"

// writeArtifact serializes the run's records to a fresh timestamped
// directory under the output root so successive runs never overwrite
// prior output. Returns the artifact path.
func (p *Pipeline) writeArtifact(records []models.BudgetRecord) (string, error) {
	dir := filepath.Join(p.config.OutputDir, time.Now().Format("20060102_150405"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, artifactName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// ReadArtifact parses a previously written artifact back into
// records.
func ReadArtifact(path string) ([]models.BudgetRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var records []models.BudgetRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}
