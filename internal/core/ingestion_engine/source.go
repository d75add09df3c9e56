package ingestion_engine

import (
	"bytes"
	"context"
	"io"

	"github.com/markdave123-py/Indexa/internal/core"
)

// Source is one uploaded file as seen by the pipeline: a named byte stream.
type Source interface {
	Name() string
	Size() int64
	ContentType() string
	// Location is the staging path or original name recorded as sourcePath.
	Location() string
	Open(ctx context.Context) (io.ReadCloser, error)
}

// BytesSource serves a file already held in memory.
type BytesSource struct {
	name        string
	contentType string
	data        []byte
}

func NewBytesSource(name, contentType string, data []byte) *BytesSource {
	return &BytesSource{name: name, contentType: ResolveContentType(name, contentType), data: data}
}

func (s *BytesSource) Name() string        { return s.name }
func (s *BytesSource) Size() int64         { return int64(len(s.data)) }
func (s *BytesSource) ContentType() string { return s.contentType }
func (s *BytesSource) Location() string    { return s.name }

func (s *BytesSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

// ObjectSource streams a file staged in object storage.
type ObjectSource struct {
	obj         core.ObjectClient
	bucket      string
	key         string
	url         string
	name        string
	contentType string
	size        int64
}

func NewObjectSource(obj core.ObjectClient, bucket, key, url, name, contentType string, size int64) *ObjectSource {
	return &ObjectSource{
		obj: obj, bucket: bucket, key: key, url: url,
		name: name, contentType: ResolveContentType(name, contentType), size: size,
	}
}

func (s *ObjectSource) Name() string        { return s.name }
func (s *ObjectSource) Size() int64         { return s.size }
func (s *ObjectSource) ContentType() string { return s.contentType }
func (s *ObjectSource) Location() string    { return s.url }
func (s *ObjectSource) Key() string         { return s.key }

func (s *ObjectSource) Open(ctx context.Context) (io.ReadCloser, error) {
	return s.obj.GetObjectReader(ctx, s.bucket, s.key)
}

// FailedSource stands in for an upload that could not be captured. Opening it
// returns the capture error, so only that document fails at extracting.
type FailedSource struct {
	name        string
	contentType string
	size        int64
	err         error
}

func NewFailedSource(name, contentType string, size int64, err error) *FailedSource {
	return &FailedSource{name: name, contentType: ResolveContentType(name, contentType), size: size, err: err}
}

func (s *FailedSource) Name() string        { return s.name }
func (s *FailedSource) Size() int64         { return s.size }
func (s *FailedSource) ContentType() string { return s.contentType }
func (s *FailedSource) Location() string    { return s.name }

func (s *FailedSource) Open(context.Context) (io.ReadCloser, error) {
	return nil, s.err
}
