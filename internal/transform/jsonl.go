package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// JSONLines reads one JSON object per line. Blank lines are skipped and
// numbers keep their original text.
type JSONLines struct{}

func (JSONLines) Transform(_ context.Context, raw []byte) ([]Record, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)

	var records []Record
	for i, line := range bytes.Split(raw, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		rec, err := decodeObject(line)
		if err != nil {
			return nil, transformationError(fmt.Sprintf("line %d is not a JSON object", i+1), err)
		}
		records = append(records, rec)
	}

	return records, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func decodeObject(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("null is not an object")
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after object")
	}
	return rec, nil
}
