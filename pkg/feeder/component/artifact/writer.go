package artifact

import (
	"bufio"
	"context"
	"fmt"

	"github.com/tigerroll/feeder/pkg/feeder/adapter/storage"
	model "github.com/tigerroll/feeder/pkg/feeder/core/domain/model"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/exception"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/logger"
)

const writerModule = "artifact"

// Writer persists RowSets as artifacts in a storage bucket.
type Writer struct {
	store  storage.StorageExecutor
	bucket string
	format Format
}

// NewWriter creates a Writer. An empty bucket uses the storage connection's default bucket.
func NewWriter(store storage.StorageExecutor, bucket string, format Format) (*Writer, error) {
	if err := format.Validate(); err != nil {
		return nil, exception.NewConfigError(writerModule, "invalid artifact format", err)
	}
	return &Writer{store: store, bucket: bucket, format: format}, nil
}

// Format returns the writer's encoding.
func (w *Writer) Format() Format { return w.format }

// Bucket returns the bucket artifacts are written to.
func (w *Writer) Bucket() string { return w.bucket }

// Store returns the underlying storage.
func (w *Writer) Store() storage.StorageExecutor { return w.store }

// Write serializes rs under name in one step. The artifact becomes visible only once fully written.
func (w *Writer) Write(ctx context.Context, name string, rs *model.RowSet) (int64, error) {
	s, err := w.Open(ctx, name, rs.Columns())
	if err != nil {
		return 0, err
	}
	if err := s.Append(rs); err != nil {
		_ = s.Abort()
		return 0, err
	}
	return s.Commit()
}

// Open starts an append-mode artifact with the given header. Nothing is visible until Commit.
func (w *Writer) Open(ctx context.Context, name string, columns []string) (*Session, error) {
	if len(columns) == 0 {
		return nil, exception.NewArtifactError(writerModule, fmt.Sprintf("artifact '%s' has no columns", name), nil)
	}
	ow, err := w.store.Create(ctx, w.bucket, name)
	if err != nil {
		return nil, exception.NewArtifactError(writerModule, fmt.Sprintf("failed to create artifact '%s'", name), err)
	}
	s := &Session{
		name:    name,
		format:  w.format,
		columns: append([]string(nil), columns...),
		object:  ow,
		buf:     bufio.NewWriterSize(ow, 256*1024),
	}

	line := make([]byte, 0, 256)
	for i, c := range columns {
		if i > 0 {
			line = appendRune(line, w.format.Delimiter)
		}
		line = w.format.escape(line, c)
	}
	line = append(line, '\n')
	if _, err := s.buf.Write(line); err != nil {
		_ = s.Abort()
		return nil, exception.NewArtifactError(writerModule, fmt.Sprintf("failed to write header of '%s'", name), err)
	}
	logger.Debugf("Opened artifact '%s' with %d columns.", name, len(columns))
	return s, nil
}

// Session is an artifact being written. It is not safe for concurrent use.
type Session struct {
	name    string
	format  Format
	columns []string
	object  storage.ObjectWriter
	buf     *bufio.Writer
	rows    int64
	line    []byte
	done    bool
}

// Name returns the artifact name.
func (s *Session) Name() string { return s.name }

// Columns returns the artifact header.
func (s *Session) Columns() []string { return s.columns }

// Rows returns the number of rows appended so far.
func (s *Session) Rows() int64 { return s.rows }

// Append writes every row of rs. rs must have exactly the session's columns, in order.
func (s *Session) Append(rs *model.RowSet) error {
	if s.done {
		return exception.NewArtifactError(writerModule, fmt.Sprintf("artifact '%s' is already finished", s.name), nil)
	}
	if !equalColumns(s.columns, rs.Columns()) {
		return exception.NewArtifactError(writerModule,
			fmt.Sprintf("artifact '%s' expects columns %v, got %v", s.name, s.columns, rs.Columns()), nil)
	}
	for i, row := range rs.Rows() {
		if !s.format.Trusting && len(row) != len(s.columns) {
			return exception.NewArtifactError(writerModule,
				fmt.Sprintf("row %d of '%s' has %d fields, expected %d", i, s.name, len(row), len(s.columns)), nil)
		}
		line := s.line[:0]
		var err error
		for j, v := range row {
			if j > 0 {
				line = appendRune(line, s.format.Delimiter)
			}
			if line, err = s.format.encodeField(line, v); err != nil {
				return exception.NewArtifactError(writerModule,
					fmt.Sprintf("row %d field %d of '%s'", i, j, s.name), err)
			}
		}
		line = append(line, '\n')
		if _, err := s.buf.Write(line); err != nil {
			return exception.NewArtifactError(writerModule, fmt.Sprintf("failed to write '%s'", s.name), err)
		}
		s.line = line
		s.rows++
	}
	return nil
}

// Commit flushes and publishes the artifact, returning the number of data rows.
func (s *Session) Commit() (int64, error) {
	if s.done {
		return s.rows, exception.NewArtifactError(writerModule, fmt.Sprintf("artifact '%s' is already finished", s.name), nil)
	}
	s.done = true
	if err := s.buf.Flush(); err != nil {
		_ = s.object.Abort()
		return 0, exception.NewArtifactError(writerModule, fmt.Sprintf("failed to flush '%s'", s.name), err)
	}
	if err := s.object.Commit(); err != nil {
		return 0, exception.NewArtifactError(writerModule, fmt.Sprintf("failed to publish '%s'", s.name), err)
	}
	logger.Debugf("Published artifact '%s' (%d rows).", s.name, s.rows)
	return s.rows, nil
}

// Abort discards the artifact. It is safe to call after Commit or more than once.
func (s *Session) Abort() error {
	if s.done {
		return nil
	}
	s.done = true
	return s.object.Abort()
}

func appendRune(b []byte, r rune) []byte {
	if r < 0x80 {
		return append(b, byte(r))
	}
	return append(b, string(r)...)
}

func equalColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
