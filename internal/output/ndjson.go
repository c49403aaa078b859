// Package output encodes transformed records and writes them to the output
// bucket.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"

	"ingest/internal/transform"
)

// EncodeNDJSON writes one compact JSON object per record, each terminated by
// a newline. An empty slice encodes to an empty body.
func EncodeNDJSON(records []transform.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if rec == nil {
			rec = transform.Record{}
		}
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("record %d is not serializable: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
