package target

import (
	"fmt"
	"os"

	"github.com/specialistvlad/variantforge/internal/fsutil"
	"gopkg.in/yaml.v3"
)

const descriptionVersion = 1

// Description is the document handed to the external build executor.
type Description struct {
	Version int            `yaml:"version"`
	RunID   string         `yaml:"run_id,omitempty"`
	Targets []*BuildTarget `yaml:"targets"`
}

// Marshal renders the targets as a YAML description, preserving order.
func Marshal(runID string, targets []*BuildTarget) ([]byte, error) {
	data, err := yaml.Marshal(&Description{Version: descriptionVersion, RunID: runID, Targets: targets})
	if err != nil {
		return nil, fmt.Errorf("encoding build targets: %w", err)
	}
	return data, nil
}

// Write atomically replaces the description at path.
func Write(path, runID string, targets []*BuildTarget) error {
	data, err := Marshal(runID, targets)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, data, 0o644)
}

// Read parses a description written by Write.
func Read(path string) (*Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d Description
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &d, nil
}
