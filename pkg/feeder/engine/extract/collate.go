package extract

import (
	"context"
	"fmt"

	model "github.com/tigerroll/feeder/pkg/feeder/core/domain/model"
)

// SingleCollator is the default collator: the job must have exactly one query, whose result is used as is.
type SingleCollator struct{}

// Name implements Collator.
func (SingleCollator) Name() string { return "single" }

// Collate implements Collator.
func (SingleCollator) Collate(_ context.Context, _ *RunContext, results []*model.RowSet) (*model.RowSet, error) {
	if len(results) != 1 {
		return nil, fmt.Errorf("single collator needs exactly one query result, got %d", len(results))
	}
	return results[0], nil
}

var _ Collator = SingleCollator{}
