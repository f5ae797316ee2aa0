// Package cache holds the per-run caches used by transform steps: surrogate key assignment for
// natural keys and memoized point lookups against the source store.
//
// Both are private to one extraction run and are not safe for concurrent use.
package cache

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
)

// SurrogateKeyGenerator maps natural key tuples to increasing integer keys.
// A tuple keeps its key until Forget is called.
//
// Tuples are remembered by the 128-bit xxh3 hash of their encoding, so each entry costs the same
// regardless of how wide the natural key is. Two distinct tuples sharing a key would need a
// 128-bit collision.
type SurrogateKeyGenerator struct {
	next int64
	keys map[xxh3.Uint128]int64
}

// NewSurrogateKeyGenerator creates a generator whose first key is start.
func NewSurrogateKeyGenerator(start int64) *SurrogateKeyGenerator {
	return &SurrogateKeyGenerator{
		next: start,
		keys: make(map[xxh3.Uint128]int64),
	}
}

// NextKey returns a fresh key. Keys are never reused.
func (g *SurrogateKeyGenerator) NextKey() int64 {
	k := g.next
	g.next++
	return k
}

// Peek returns the key the next allocation would return.
func (g *SurrogateKeyGenerator) Peek() int64 {
	return g.next
}

// GetKey returns the key memoized for tuple, allocating one with NextKey on first sight.
// Tuples are equal when they have the same length and pairwise equal values of the same type,
// with all signed and unsigned integer kinds treated as int64.
func (g *SurrogateKeyGenerator) GetKey(tuple ...any) int64 {
	h := xxh3.HashString128(encodeTuple(tuple))
	if k, ok := g.keys[h]; ok {
		return k
	}
	k := g.NextKey()
	g.keys[h] = k
	return k
}

// Forget drops every memoized tuple. NextKey continues from the current counter, so a tuple seen
// before Forget receives a new, larger key if it is looked up again.
func (g *SurrogateKeyGenerator) Forget() {
	g.keys = make(map[xxh3.Uint128]int64)
}

// Len returns the number of memoized tuples.
func (g *SurrogateKeyGenerator) Len() int {
	return len(g.keys)
}

// encodeTuple produces an unambiguous string form: each element is tagged with its type and
// length-prefixed, so ("a|b") and ("a", "b") never collide.
func encodeTuple(tuple []any) string {
	var b strings.Builder
	for _, v := range tuple {
		tag, s := canonical(v)
		b.WriteString(tag)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(len(s)))
		b.WriteByte(':')
		b.WriteString(s)
	}
	return b.String()
}

func canonical(v any) (string, string) {
	switch t := v.(type) {
	case nil:
		return "n", ""
	case string:
		return "s", t
	case int:
		return "i", strconv.FormatInt(int64(t), 10)
	case int8:
		return "i", strconv.FormatInt(int64(t), 10)
	case int16:
		return "i", strconv.FormatInt(int64(t), 10)
	case int32:
		return "i", strconv.FormatInt(int64(t), 10)
	case int64:
		return "i", strconv.FormatInt(t, 10)
	case uint:
		return "i", strconv.FormatUint(uint64(t), 10)
	case uint8:
		return "i", strconv.FormatUint(uint64(t), 10)
	case uint16:
		return "i", strconv.FormatUint(uint64(t), 10)
	case uint32:
		return "i", strconv.FormatUint(uint64(t), 10)
	case uint64:
		return "i", strconv.FormatUint(t, 10)
	case float64:
		return "f", strconv.FormatFloat(t, 'g', -1, 64)
	case float32:
		return "f", strconv.FormatFloat(float64(t), 'g', -1, 32)
	case bool:
		return "b", strconv.FormatBool(t)
	case time.Time:
		return "t", t.UTC().Format(time.RFC3339Nano)
	case []byte:
		return "s", string(t)
	default:
		return fmt.Sprintf("%T", v), fmt.Sprintf("%v", v)
	}
}
