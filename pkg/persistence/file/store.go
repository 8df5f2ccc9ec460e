package file

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// writeDocument marshals v to <dir>/<name>.json, creating dir on demand.
// The write goes through a temp file and rename so readers never observe a
// partially written document.
func writeDocument(dir, name string, v any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	target := filepath.Join(dir, name+".json")
	temp := target + ".tmp"

	if err := os.WriteFile(temp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", temp, err)
	}

	if err := os.Rename(temp, target); err != nil {
		return fmt.Errorf("failed to rename %s: %w", temp, err)
	}

	return nil
}

// readDocument unmarshals <dir>/<name>.json into v. Returns os.ErrNotExist
// when the document is missing.
func readDocument(dir, name string, v any) error {
	data, err := os.ReadFile(filepath.Join(dir, name+".json"))
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", name, err)
	}

	return nil
}

// listDocuments returns the names (without extension) of all documents in dir.
func listDocuments(dir string) ([]string, error) {
	root := os.DirFS(dir)

	files, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list documents in %s: %w", dir, err)
	}

	names := make([]string, 0, len(files))
	for _, file := range files {
		names = append(names, file[:len(file)-len(".json")])
	}

	return names, nil
}

func deleteDocument(dir, name string) error {
	return os.Remove(filepath.Join(dir, name+".json"))
}
