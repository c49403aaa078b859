package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// JSONDocument reads a whole object as one JSON value: an array of objects
// yields one record per element, a single object yields one record.
type JSONDocument struct{}

func (JSONDocument) Transform(_ context.Context, raw []byte) ([]Record, error) {
	raw = bytes.TrimSpace(bytes.TrimPrefix(raw, utf8BOM))
	if len(raw) == 0 {
		return nil, transformationError("document is empty", nil)
	}

	if raw[0] == '{' {
		rec, err := decodeObject(raw)
		if err != nil {
			return nil, transformationError("document is not a JSON object", err)
		}
		return []Record{rec}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var items []json.RawMessage
	if err := dec.Decode(&items); err != nil {
		return nil, transformationError("document is neither a JSON object nor an array", err)
	}
	if dec.More() {
		return nil, transformationError("unexpected data after the top-level array", nil)
	}

	records := make([]Record, 0, len(items))
	for i, item := range items {
		rec, err := decodeObject(item)
		if err != nil {
			return nil, transformationError(fmt.Sprintf("element %d is not a JSON object", i), err)
		}
		records = append(records, rec)
	}

	return records, nil
}
