package extract

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/feeder/pkg/feeder/component/artifact"
	model "github.com/tigerroll/feeder/pkg/feeder/core/domain/model"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/exception"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/logger"
)

// ChunkSpec configures range partitioning of a job over an integer key.
type ChunkSpec struct {
	// Size is the width of each range. Must be > 0.
	Size int64
	// MinQuery and MaxQuery return a single value: the smallest and largest key.
	// They may use {{key}} to narrow the domain of a scoped run.
	MinQuery string
	MaxQuery string
	// KeyExpr is the source expression {{range}} constrains.
	KeyExpr string
}

// Validate checks the chunk settings.
func (s ChunkSpec) Validate() error {
	if s.Size <= 0 {
		return fmt.Errorf("chunk size must be > 0, got %d", s.Size)
	}
	if s.MinQuery == "" || s.MaxQuery == "" {
		return fmt.Errorf("chunk min_query and max_query are required")
	}
	if s.KeyExpr == "" {
		return fmt.Errorf("chunk key_expr is required")
	}
	for _, q := range []string{s.MinQuery, s.MaxQuery} {
		if err := validateTemplate(q); err != nil {
			return err
		}
		if placeholders(q)[rangePlaceholder] {
			return fmt.Errorf("domain query cannot use {{range}}: %s", q)
		}
	}
	return nil
}

// KeyDomain is the closed key interval [Min, Max] present at query time.
type KeyDomain struct {
	Min int64
	Max int64
}

// ChunkRanges partitions [minKey, maxKey] into consecutive ranges of width size, in increasing order.
// It returns nil when minKey > maxKey. The last range may extend past maxKey.
func ChunkRanges(minKey, maxKey, size int64) ([]model.ChunkRange, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be > 0, got %d", size)
	}
	if minKey > maxKey {
		return nil, nil
	}
	if maxKey == math.MaxInt64 {
		return nil, fmt.Errorf("key %d cannot be covered by a half-open range", maxKey)
	}
	n := uint64(maxKey-minKey)/uint64(size) + 1
	if n > 1<<16 {
		n = 1 << 16
	}
	ranges := make([]model.ChunkRange, 0, n)
	for lo := minKey; ; {
		hi := lo + size
		if hi < lo {
			hi = maxKey + 1
		}
		ranges = append(ranges, model.ChunkRange{Lo: lo, Hi: hi})
		if hi > maxKey {
			return ranges, nil
		}
		lo = hi
	}
}

// ChunkedExtractor runs a job once per key range and appends every chunk to one artifact.
// Chunks run in increasing key order against one RunContext, so lookup caches, surrogate keys
// and counters carry across chunks and the generated column keeps counting.
type ChunkedExtractor struct {
	*Extractor
	chunk ChunkSpec
}

// NewChunkedExtractor builds a ChunkedExtractor. Every query of job must contain {{range}}.
func NewChunkedExtractor(job *model.JobSpec, chunk ChunkSpec, source Source, writer *artifact.Writer, opts ...Option) (*ChunkedExtractor, error) {
	e, err := NewExtractor(job, source, writer, opts...)
	if err != nil {
		return nil, err
	}
	if err := chunk.Validate(); err != nil {
		return nil, exception.NewConfigError(moduleName, fmt.Sprintf("job '%s'", job.Name), err)
	}
	for i, q := range job.Queries {
		if !placeholders(q)[rangePlaceholder] {
			return nil, exception.NewConfigError(moduleName,
				fmt.Sprintf("job '%s' query %d has no {{range}} placeholder and cannot be chunked", job.Name, i), nil)
		}
	}
	e.rangeExpr = chunk.KeyExpr
	return &ChunkedExtractor{Extractor: e, chunk: chunk}, nil
}

// Chunk returns the chunk configuration.
func (c *ChunkedExtractor) Chunk() ChunkSpec { return c.chunk }

// KeyDomain queries the smallest and largest key. It returns nil when the source has no rows.
func (c *ChunkedExtractor) KeyDomain(ctx context.Context, key *model.KeyContext) (*KeyDomain, error) {
	lo, err := c.boundary(ctx, c.chunk.MinQuery, key)
	if err != nil || lo == nil {
		return nil, err
	}
	hi, err := c.boundary(ctx, c.chunk.MaxQuery, key)
	if err != nil || hi == nil {
		return nil, err
	}
	return &KeyDomain{Min: *lo, Max: *hi}, nil
}

func (c *ChunkedExtractor) boundary(ctx context.Context, tmpl string, key *model.KeyContext) (*int64, error) {
	keyExpr := ""
	if key != nil {
		keyExpr = c.job.KeyFields[key.Field]
	}
	q, args, err := expandQuery(tmpl, key, keyExpr, nil, "")
	if err != nil {
		return nil, exception.NewConfigError(moduleName, fmt.Sprintf("job '%s' domain query", c.job.Name), err)
	}
	start := time.Now()
	rs, err := c.source.Query(ctx, q, args...)
	c.recorder.RecordQuery(ctx, c.job.Name, time.Since(start), err)
	if err != nil {
		return nil, exception.NewSourceQueryError(moduleName, fmt.Sprintf("job '%s' domain query failed", c.job.Name), err)
	}
	if rs.Len() == 0 || rs.Width() == 0 {
		return nil, nil
	}
	v, err := toInt64(rs.Row(0)[0])
	if err != nil {
		return nil, exception.NewSourceQueryError(moduleName, fmt.Sprintf("job '%s' domain query returned a non-integer key", c.job.Name), err)
	}
	return v, nil
}

// Run implements Runner. An empty key domain publishes a header-only artifact.
func (c *ChunkedExtractor) Run(ctx context.Context, key *model.KeyContext) (handle *model.ArtifactHandle, err error) {
	start := time.Now()
	if err := c.checkKey(key); err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	ctx, end := c.tracer.StartSpan(ctx, "extract."+c.job.Name, map[string]interface{}{
		"table": c.job.Name, "key": key.String(), "run_id": runID, "chunk_size": c.chunk.Size,
	})
	defer func() {
		var rows int64
		if handle != nil {
			rows = handle.Rows
		}
		c.recorder.RecordExtract(ctx, c.job.Name, rows, time.Since(start), err)
		end(err)
	}()

	logger.Infof("Chunked extract '%s' (%s) started. run_id=%s chunk_size=%d", c.job.Name, key.String(), runID, c.chunk.Size)
	domain, err := c.KeyDomain(ctx, key)
	if err != nil {
		return nil, err
	}
	var ranges []model.ChunkRange
	if domain == nil {
		logger.Infof("Chunked extract '%s' (%s): key domain is empty.", c.job.Name, key.String())
	} else {
		if ranges, err = ChunkRanges(domain.Min, domain.Max, c.chunk.Size); err != nil {
			return nil, exception.NewSourceQueryError(moduleName, fmt.Sprintf("job '%s' key domain", c.job.Name), err)
		}
		logger.Debugf("Chunked extract '%s': domain [%d,%d] in %d chunks.", c.job.Name, domain.Min, domain.Max, len(ranges))
	}

	name := artifact.Name(c.job.Name, key)
	session, err := c.writer.Open(ctx, name, c.job.ColumnNames())
	if err != nil {
		return nil, err
	}
	rc := NewRunContext(runID, c.job, key, c.source, c.recorder)
	for i := range ranges {
		r := ranges[i]
		rc.Chunk = &r
		chunkStart := time.Now()
		rs, err := c.extractOnce(ctx, rc, session.Rows())
		if err == nil {
			err = session.Append(rs)
		}
		if err != nil {
			_ = session.Abort()
			logger.Errorf("Chunked extract '%s' (%s) failed at chunk %s: %v", c.job.Name, key.String(), r, err)
			return nil, err
		}
		c.recorder.RecordChunk(ctx, c.job.Name, int64(rs.Len()), time.Since(chunkStart))
		logger.Debugf("Chunked extract '%s' chunk %s: %d rows.", c.job.Name, r, rs.Len())
	}
	rc.Chunk = nil

	rows, err := session.Commit()
	if err != nil {
		return nil, err
	}
	logger.Infof("Chunked extract '%s' (%s) finished: %d rows in %d chunks -> '%s' in %s.",
		c.job.Name, key.String(), rows, len(ranges), name, time.Since(start))
	return &model.ArtifactHandle{Name: name, Table: c.job.Name, Key: key, Columns: c.job.ColumnNames(), Rows: rows}, nil
}

func toInt64(v any) (*int64, error) {
	var n int64
	switch t := v.(type) {
	case nil:
		return nil, nil
	case int64:
		n = t
	case float64:
		if t != math.Trunc(t) || t > math.MaxInt64 || t < math.MinInt64 {
			return nil, fmt.Errorf("%v is not an integer", t)
		}
		n = int64(t)
	case string:
		p, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return nil, err
		}
		n = p
	default:
		return nil, fmt.Errorf("unsupported key type %T", v)
	}
	return &n, nil
}

var _ Runner = (*ChunkedExtractor)(nil)
