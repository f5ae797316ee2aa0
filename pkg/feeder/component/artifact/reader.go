package artifact

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tigerroll/feeder/pkg/feeder/adapter/storage"
	model "github.com/tigerroll/feeder/pkg/feeder/core/domain/model"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/exception"
)

// Reader decodes an artifact record by record. Every non-NULL field is returned as a string.
type Reader struct {
	r       *bufio.Reader
	closer  io.Closer
	format  Format
	columns []string
	line    int
}

// NewReader reads the header from r. If r is an io.Closer, Close closes it.
func NewReader(r io.Reader, format Format) (*Reader, error) {
	rd := &Reader{r: bufio.NewReaderSize(r, 256*1024), format: format}
	if c, ok := r.(io.Closer); ok {
		rd.closer = c
	}
	header, err := rd.readLine()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, exception.NewArtifactError(writerModule, "artifact has no header", nil)
		}
		return nil, exception.NewArtifactError(writerModule, "failed to read header", err)
	}
	for _, raw := range format.splitLine(header) {
		v, err := format.decodeField(raw)
		if err != nil {
			return nil, exception.NewArtifactError(writerModule, "malformed header", err)
		}
		name, ok := v.(string)
		if !ok || name == "" {
			return nil, exception.NewArtifactError(writerModule, fmt.Sprintf("header contains an invalid column name %q", raw), nil)
		}
		rd.columns = append(rd.columns, name)
	}
	return rd, nil
}

// Open downloads the named artifact from store and reads its header.
func Open(ctx context.Context, store storage.StorageExecutor, bucket, name string, format Format) (*Reader, error) {
	rc, err := store.Download(ctx, bucket, name)
	if err != nil {
		return nil, exception.NewArtifactError(writerModule, fmt.Sprintf("failed to open artifact '%s'", name), err)
	}
	rd, err := NewReader(rc, format)
	if err != nil {
		rc.Close()
		return nil, err
	}
	return rd, nil
}

// Columns returns the header.
func (r *Reader) Columns() []string { return r.columns }

// Next returns the next row, or io.EOF after the last one.
func (r *Reader) Next() (model.Row, error) {
	line, err := r.readLine()
	if err != nil {
		return nil, err
	}
	raws := r.format.splitLine(line)
	if len(raws) != len(r.columns) {
		return nil, exception.NewArtifactError(writerModule,
			fmt.Sprintf("line %d has %d fields, expected %d", r.line, len(raws), len(r.columns)), nil)
	}
	row := make(model.Row, len(raws))
	for i, raw := range raws {
		if row[i], err = r.format.decodeField(raw); err != nil {
			return nil, exception.NewArtifactError(writerModule, fmt.Sprintf("line %d", r.line), err)
		}
	}
	return row, nil
}

// ReadAll reads the remaining rows into a RowSet.
func (r *Reader) ReadAll() (*model.RowSet, error) {
	rs, err := model.NewRowSet(r.columns...)
	if err != nil {
		return nil, exception.NewArtifactError(writerModule, "invalid header", err)
	}
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return rs, nil
		}
		if err != nil {
			return nil, err
		}
		if err := rs.Append(row); err != nil {
			return nil, err
		}
	}
}

// Close releases the underlying stream.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// readLine returns the next LF-terminated record without its terminator.
// A final record without a terminator is truncated output and is reported as an error.
func (r *Reader) readLine() (string, error) {
	line, err := r.r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return "", exception.NewArtifactError(writerModule, fmt.Sprintf("line %d is not terminated", r.line+1), nil)
		}
		return "", err
	}
	r.line++
	return strings.TrimSuffix(line, "\n"), nil
}
