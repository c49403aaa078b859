package output

import (
	"context"
	"fmt"

	"ingest/internal/constants"
	"ingest/internal/storage"
	"ingest/internal/transform"
	"ingest/pkg/errors"
)

// Object is one encoded output object ready to be written.
type Object struct {
	Key     string
	Body    []byte
	Records int
}

// Writer splits a transform result into objects and writes them.
type Writer struct {
	store       storage.ObjectStore
	bucket      string
	contentType string
	maxRecords  int
}

func NewWriter(store storage.ObjectStore, bucket, contentType string, maxRecords int) *Writer {
	if contentType == "" {
		contentType = constants.ContentTypeNDJSON
	}
	return &Writer{
		store:       store,
		bucket:      bucket,
		contentType: contentType,
		maxRecords:  maxRecords,
	}
}

func (w *Writer) Bucket() string {
	return w.bucket
}

// Plan encodes records into the objects Write will store. With no limit, or
// when the records fit, the result is one object at key. Otherwise objects
// are named key.part-0000, key.part-0001 and so on. A serialization failure
// is a transformation error: the transformer produced a non-serializable
// record.
func (w *Writer) Plan(key string, records []transform.Record) ([]Object, error) {
	if w.maxRecords <= 0 || len(records) <= w.maxRecords {
		body, err := EncodeNDJSON(records)
		if err != nil {
			return nil, errors.ErrTransformation.WithMessage(err.Error()).WithCause(err)
		}
		return []Object{{Key: key, Body: body, Records: len(records)}}, nil
	}

	objects := make([]Object, 0, (len(records)+w.maxRecords-1)/w.maxRecords)
	for start := 0; start < len(records); start += w.maxRecords {
		end := min(start+w.maxRecords, len(records))
		body, err := EncodeNDJSON(records[start:end])
		if err != nil {
			return nil, errors.ErrTransformation.WithMessage(err.Error()).WithCause(err)
		}
		objects = append(objects, Object{
			Key:     fmt.Sprintf(constants.OutputPartFormat, key, len(objects)),
			Body:    body,
			Records: end - start,
		})
	}
	return objects, nil
}

// Write stores objects in order and stops at the first failure.
func (w *Writer) Write(ctx context.Context, objects []Object) error {
	for _, obj := range objects {
		if err := w.store.Put(ctx, w.bucket, obj.Key, obj.Body, w.contentType); err != nil {
			return err
		}
	}
	return nil
}
