package step

import (
	"context"
	"fmt"
	"strings"

	model "github.com/tigerroll/feeder/pkg/feeder/core/domain/model"
	"github.com/tigerroll/feeder/pkg/feeder/engine/extract"
)

// DefaultCategory is used for codes missing from the classification table.
const DefaultCategory = "other"

// ClassifyProperties configures a ClassifyStep.
type ClassifyProperties struct {
	Column string `yaml:"column"`
	Into   string `yaml:"into"`
	// Mapping maps a code to its category.
	Mapping map[string]string `yaml:"mapping"`
	// Default is the category of unmapped and NULL codes. Empty means DefaultCategory.
	Default         string `yaml:"default"`
	CaseInsensitive bool   `yaml:"case_insensitive"`
}

// ClassifyStep derives a category column from a small code table.
type ClassifyStep struct {
	props   ClassifyProperties
	mapping map[string]string
}

// NewClassifyStep creates a ClassifyStep.
func NewClassifyStep(props ClassifyProperties) (*ClassifyStep, error) {
	if props.Column == "" || props.Into == "" {
		return nil, fmt.Errorf("classify needs 'column' and 'into'")
	}
	if props.Default == "" {
		props.Default = DefaultCategory
	}
	m := make(map[string]string, len(props.Mapping))
	for code, category := range props.Mapping {
		if props.CaseInsensitive {
			code = strings.ToLower(code)
		}
		m[code] = category
	}
	return &ClassifyStep{props: props, mapping: m}, nil
}

// NewClassifyStepBuilder returns the builder registered as "classify".
func NewClassifyStepBuilder() StepBuilder {
	return func(properties map[string]interface{}) (extract.Step, error) {
		var props ClassifyProperties
		if err := bind(properties, &props); err != nil {
			return nil, err
		}
		return NewClassifyStep(props)
	}
}

// Name implements extract.Step.
func (s *ClassifyStep) Name() string { return "classify:" + s.props.Into }

// Classify returns the category of code.
func (s *ClassifyStep) Classify(code any) string {
	if code == nil {
		return s.props.Default
	}
	k := fmt.Sprint(code)
	if s.props.CaseInsensitive {
		k = strings.ToLower(k)
	}
	if c, ok := s.mapping[k]; ok {
		return c
	}
	return s.props.Default
}

// Apply implements extract.Step.
func (s *ClassifyStep) Apply(_ context.Context, _ *extract.RunContext, rs *model.RowSet) (*model.RowSet, error) {
	idx, ok := rs.Index(s.props.Column)
	if !ok {
		return nil, fmt.Errorf("classify column '%s' not in %v", s.props.Column, rs.Columns())
	}
	err := rs.AddColumn(s.props.Into, func(_ int, row model.Row) (any, error) {
		return s.Classify(row[idx]), nil
	})
	if err != nil {
		return nil, err
	}
	return rs, nil
}

var _ extract.Step = (*ClassifyStep)(nil)
