package sort_test

import (
	stdsort "sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	feedersort "github.com/tigerroll/feeder/pkg/feeder/component/sort"
)

func TestCompareStrings_DigitRunsAreNumeric(t *testing.T) {
	assert.Equal(t, -1, feedersort.CompareStrings("Zfp2", "Zfp10"))
	assert.Equal(t, 1, feedersort.CompareStrings("Zfp10", "Zfp2"))
	assert.Equal(t, -1, feedersort.CompareStrings("a9b", "a10a"))
	assert.Equal(t, 0, feedersort.CompareStrings("Kit", "Kit"))
}

func TestCompareStrings_TotalOrder(t *testing.T) {
	assert.Equal(t, -1, feedersort.CompareStrings("abc", "ABD"), "text compares case-insensitively")
	assert.NotEqual(t, 0, feedersort.CompareStrings("abc", "ABC"), "case-only differences still break the tie")
	assert.Equal(t, -1, feedersort.CompareStrings("a1", "a01"), "fewer leading zeros first")
	assert.Equal(t, -1, feedersort.CompareStrings("Pax", "Pax6"), "prefix first")
	assert.Equal(t, -1, feedersort.CompareStrings("1abc", "abc"), "digits before text")
	assert.Equal(t, -1, feedersort.CompareStrings("a99999999999999999999999", "a100000000000000000000000"), "no overflow")
}

func TestCompareStrings_SortsGeneSymbols(t *testing.T) {
	in := []string{"Zfp10", "Hoxa1", "Zfp2", "Hoxa10", "Hoxa2", "Zfp1a"}
	stdsort.SliceStable(in, func(i, j int) bool { return feedersort.LessStrings(in[i], in[j]) })
	assert.Equal(t, []string{"Hoxa1", "Hoxa2", "Hoxa10", "Zfp1a", "Zfp2", "Zfp10"}, in)
}

func TestCompareValues(t *testing.T) {
	now := time.Now()
	assert.Equal(t, -1, feedersort.CompareValues(nil, int64(0)))
	assert.Equal(t, 0, feedersort.CompareValues(nil, nil))
	assert.Equal(t, -1, feedersort.CompareValues(int64(2), int64(10)))
	assert.Equal(t, -1, feedersort.CompareValues(int64(2), 2.5))
	assert.Equal(t, 1, feedersort.CompareValues(now.Add(time.Second), now))
	assert.Equal(t, -1, feedersort.CompareValues(false, true))
	assert.Equal(t, -1, feedersort.CompareValues("Zfp2", "Zfp10"))
	assert.Equal(t, -1, feedersort.CompareValues(int64(5), "a"), "numbers sort before text")
}
