package step

import (
	"context"
	"fmt"

	model "github.com/tigerroll/feeder/pkg/feeder/core/domain/model"
	"github.com/tigerroll/feeder/pkg/feeder/engine/extract"
)

// SequenceProperties configures a SequenceStep.
type SequenceProperties struct {
	// Into is the name of the appended column.
	Into string `yaml:"into"`
	// GroupBy partitions the numbering; each distinct combination counts from 1. Empty numbers globally.
	GroupBy []string `yaml:"group_by"`
}

// SequenceStep appends a running row number, global or per group, in current row order.
// Counters live in the RunContext, so a chunked run keeps counting across chunks.
type SequenceStep struct {
	props SequenceProperties
}

// NewSequenceStep creates a SequenceStep.
func NewSequenceStep(props SequenceProperties) (*SequenceStep, error) {
	if props.Into == "" {
		return nil, fmt.Errorf("sequence needs 'into'")
	}
	return &SequenceStep{props: props}, nil
}

// NewSequenceStepBuilder returns the builder registered as "sequence".
func NewSequenceStepBuilder() StepBuilder {
	return func(properties map[string]interface{}) (extract.Step, error) {
		var props SequenceProperties
		if err := bind(properties, &props); err != nil {
			return nil, err
		}
		return NewSequenceStep(props)
	}
}

// Name implements extract.Step.
func (s *SequenceStep) Name() string { return "sequence:" + s.props.Into }

// Apply implements extract.Step.
func (s *SequenceStep) Apply(_ context.Context, rc *extract.RunContext, rs *model.RowSet) (*model.RowSet, error) {
	positions := make([]int, len(s.props.GroupBy))
	for i, c := range s.props.GroupBy {
		pos, ok := rs.Index(c)
		if !ok {
			return nil, fmt.Errorf("sequence group column '%s' not in %v", c, rs.Columns())
		}
		positions[i] = pos
	}
	counter := "sequence:" + s.props.Into
	// Group tuples are interned to comparable int64 ids.
	groups := rc.Surrogates(counter)
	tuple := make([]any, len(positions))
	err := rs.AddColumn(s.props.Into, func(_ int, row model.Row) (any, error) {
		var group int64
		if len(positions) > 0 {
			for i, pos := range positions {
				tuple[i] = row[pos]
			}
			group = groups.GetKey(tuple...)
		}
		return rc.Increment(counter, group), nil
	})
	if err != nil {
		return nil, err
	}
	return rs, nil
}

var _ extract.Step = (*SequenceStep)(nil)
