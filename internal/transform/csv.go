package transform

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// CSV maps each row to a record keyed by the header row. All values are
// strings and every row must have as many fields as the header. Header names
// must be unique.
type CSV struct {
	Delimiter rune
	Comment   rune
}

func (c CSV) Transform(_ context.Context, raw []byte) ([]Record, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(raw, utf8BOM)))
	if c.Delimiter != 0 {
		r.Comma = c.Delimiter
	}
	r.Comment = c.Comment
	r.ReuseRecord = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, transformationError("missing header row", nil)
	}
	if err != nil {
		return nil, transformationError("failed to read header row", err)
	}
	columns := append([]string(nil), header...)
	seen := make(map[string]int, len(columns))
	for i, col := range columns {
		if first, ok := seen[col]; ok {
			return nil, transformationError(
				fmt.Sprintf("duplicate header %q in columns %d and %d", col, first+1, i+1), nil)
		}
		seen[col] = i
	}

	var records []Record
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, transformationError("malformed row", err)
		}

		rec := make(Record, len(columns))
		for i, col := range columns {
			rec[col] = row[i]
		}
		records = append(records, rec)
	}

	return records, nil
}
