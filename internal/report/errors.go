package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func WriteErrorsMarkdown(path string, errors []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Report errors\n\n")
	for _, err := range errors {
		fmt.Fprintf(&b, "- %s\n", err)
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}
