package step

import (
	"context"
	"fmt"

	"github.com/tigerroll/feeder/pkg/feeder/component/cache"
	model "github.com/tigerroll/feeder/pkg/feeder/core/domain/model"
	"github.com/tigerroll/feeder/pkg/feeder/engine/extract"
)

// LookupProperties configures a LookupStep.
type LookupProperties struct {
	// Column holds the search values.
	Column string `yaml:"column"`
	// Into is the name of the appended column.
	Into            string `yaml:"into"`
	Table           string `yaml:"table"`
	SearchField     string `yaml:"search_field"`
	ReturnField     string `yaml:"return_field"`
	CaseInsensitive bool   `yaml:"case_insensitive"`
	// Required makes a miss on a non-null search value an error instead of NULL.
	Required bool `yaml:"required"`
}

// LookupStep resolves Column to a display value through the run's point lookup caches
// and appends it as a new column.
type LookupStep struct {
	props LookupProperties
}

// NewLookupStep validates props and creates a LookupStep.
func NewLookupStep(props LookupProperties) (*LookupStep, error) {
	if props.Column == "" || props.Into == "" {
		return nil, fmt.Errorf("lookup needs 'column' and 'into'")
	}
	if props.Table == "" || props.SearchField == "" || props.ReturnField == "" {
		return nil, fmt.Errorf("lookup needs 'table', 'search_field' and 'return_field'")
	}
	return &LookupStep{props: props}, nil
}

// NewLookupStepBuilder returns the builder registered as "lookup".
func NewLookupStepBuilder() StepBuilder {
	return func(properties map[string]interface{}) (extract.Step, error) {
		var props LookupProperties
		if err := bind(properties, &props); err != nil {
			return nil, err
		}
		return NewLookupStep(props)
	}
}

// Name implements extract.Step.
func (s *LookupStep) Name() string { return "lookup:" + s.props.Into }

// Apply implements extract.Step.
func (s *LookupStep) Apply(ctx context.Context, rc *extract.RunContext, rs *model.RowSet) (*model.RowSet, error) {
	idx, ok := rs.Index(s.props.Column)
	if !ok {
		return nil, fmt.Errorf("lookup column '%s' not in %v", s.props.Column, rs.Columns())
	}
	c, err := rc.Lookups.For(cache.LookupSpec{
		Table:           s.props.Table,
		SearchField:     s.props.SearchField,
		ReturnField:     s.props.ReturnField,
		CaseInsensitive: s.props.CaseInsensitive,
	})
	if err != nil {
		return nil, err
	}
	err = rs.AddColumn(s.props.Into, func(i int, row model.Row) (any, error) {
		v, found, err := c.Get(ctx, row[idx])
		if err != nil {
			return nil, err
		}
		if !found && s.props.Required && row[idx] != nil {
			return nil, fmt.Errorf("row %d: no %s.%s for %s = %v", i, s.props.Table, s.props.ReturnField, s.props.SearchField, row[idx])
		}
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return rs, nil
}

var _ extract.Step = (*LookupStep)(nil)
