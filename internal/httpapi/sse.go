package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
)

// writeSSE frames payload as a single `data: <json>\n\n` SSE event.
func writeSSE(w io.Writer, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", raw)
	return err
}
