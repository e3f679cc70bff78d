package report

import (
	"encoding/json"
	"os"
	"path/filepath"
)

func WriteJSON(path string, payload interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0644)
}

func WriteSummaryJSON(path string, r Report) error {
	return WriteJSON(path, r)
}
