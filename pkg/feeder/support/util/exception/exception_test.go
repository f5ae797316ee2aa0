package exception_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/feeder/pkg/feeder/support/util/exception"
)

func TestFeederError_KindMatching(t *testing.T) {
	cause := errors.New("connection refused")
	err := exception.NewSourceQueryError("extractor", "query failed", cause)

	assert.True(t, errors.Is(err, exception.ErrSourceQuery))
	assert.False(t, errors.Is(err, exception.ErrLoad))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "[extractor] query failed: connection refused", err.Error())
}

func TestFeederError_WrappedStillClassifies(t *testing.T) {
	err := fmt.Errorf("table allele: %w", exception.NewLoadError("loader", "delete failed", nil))

	assert.True(t, errors.Is(err, exception.ErrLoad))
	assert.True(t, exception.IsFeederError(err))
	assert.Equal(t, exception.ErrLoad, exception.KindOf(err))
	assert.Equal(t, "delete failed", exception.ExtractErrorMessage(err))
}

func TestAppend(t *testing.T) {
	assert.NoError(t, exception.Append(nil, nil, nil))

	err := exception.Append(nil, errors.New("a"), nil, errors.New("b"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "a")
	assert.Contains(t, err.Error(), "b")
}
