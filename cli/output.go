package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// printResult writes v as indented JSON, or the text lines otherwise.
func printResult(w io.Writer, format string, v any, text ...string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	for _, line := range text {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
