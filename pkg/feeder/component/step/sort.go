package step

import (
	"context"
	"fmt"
	"strings"

	alphanum "github.com/tigerroll/feeder/pkg/feeder/component/sort"
	model "github.com/tigerroll/feeder/pkg/feeder/core/domain/model"
	"github.com/tigerroll/feeder/pkg/feeder/engine/extract"
)

// SortProperties configures a SortStep.
type SortProperties struct {
	// By lists sort columns, most significant first. A leading '-' sorts that column descending.
	By []string `yaml:"by"`
	// TieBreak lists columns compared ascending when every By column is equal,
	// typically a numeric id so the order is deterministic.
	TieBreak []string `yaml:"tie_break"`
}

type sortKey struct {
	column string
	desc   bool
}

// SortStep orders rows with the alphanumeric comparator ("Zfp2" before "Zfp10").
type SortStep struct {
	keys []sortKey
}

// NewSortStep creates a SortStep.
func NewSortStep(props SortProperties) (*SortStep, error) {
	if len(props.By) == 0 {
		return nil, fmt.Errorf("sort needs at least one 'by' column")
	}
	s := &SortStep{}
	for _, c := range props.By {
		k := sortKey{column: strings.TrimPrefix(c, "-"), desc: strings.HasPrefix(c, "-")}
		if k.column == "" {
			return nil, fmt.Errorf("sort column must not be empty")
		}
		s.keys = append(s.keys, k)
	}
	for _, c := range props.TieBreak {
		if c == "" {
			return nil, fmt.Errorf("tie_break column must not be empty")
		}
		s.keys = append(s.keys, sortKey{column: c})
	}
	return s, nil
}

// NewSortStepBuilder returns the builder registered as "sort".
func NewSortStepBuilder() StepBuilder {
	return func(properties map[string]interface{}) (extract.Step, error) {
		var props SortProperties
		if err := bind(properties, &props); err != nil {
			return nil, err
		}
		return NewSortStep(props)
	}
}

// Name implements extract.Step.
func (s *SortStep) Name() string { return "sort" }

// Apply implements extract.Step. The sort is stable.
func (s *SortStep) Apply(_ context.Context, _ *extract.RunContext, rs *model.RowSet) (*model.RowSet, error) {
	positions := make([]int, len(s.keys))
	for i, k := range s.keys {
		pos, ok := rs.Index(k.column)
		if !ok {
			return nil, fmt.Errorf("sort column '%s' not in %v", k.column, rs.Columns())
		}
		positions[i] = pos
	}
	rs.SortStable(func(a, b model.Row) bool {
		for i, pos := range positions {
			c := alphanum.CompareValues(a[pos], b[pos])
			if s.keys[i].desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
	return rs, nil
}

var _ extract.Step = (*SortStep)(nil)
