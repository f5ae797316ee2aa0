// Package step provides the transform steps and collators table jobs compose by reference:
// lookup, sequence, sort, classify and the single, union, first_non_empty and static collators.
package step

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tigerroll/feeder/pkg/feeder/engine/extract"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/configbinder"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/exception"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/logger"
)

const moduleName = "step"

// StepBuilder creates a Step from the properties of a job file entry.
type StepBuilder func(properties map[string]interface{}) (extract.Step, error)

// CollatorBuilder creates a Collator from the properties of a job file entry.
type CollatorBuilder func(properties map[string]interface{}) (extract.Collator, error)

// Registry maps reference names used in job files to step and collator builders.
type Registry struct {
	mu        sync.RWMutex
	steps     map[string]StepBuilder
	collators map[string]CollatorBuilder
}

// NewRegistry creates a Registry holding the built-in steps and collators.
func NewRegistry() *Registry {
	r := &Registry{
		steps:     make(map[string]StepBuilder),
		collators: make(map[string]CollatorBuilder),
	}
	r.RegisterStep("lookup", NewLookupStepBuilder())
	r.RegisterStep("sequence", NewSequenceStepBuilder())
	r.RegisterStep("sort", NewSortStepBuilder())
	r.RegisterStep("classify", NewClassifyStepBuilder())
	r.RegisterCollator("single", func(map[string]interface{}) (extract.Collator, error) { return extract.SingleCollator{}, nil })
	r.RegisterCollator("union", NewUnionCollatorBuilder())
	r.RegisterCollator("first_non_empty", NewFirstNonEmptyCollatorBuilder())
	r.RegisterCollator("static", NewStaticCollatorBuilder())
	return r
}

// RegisterStep registers a step builder under ref, replacing any previous one.
func (r *Registry) RegisterStep(ref string, builder StepBuilder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.steps[ref]; exists {
		logger.Warnf("Step '%s' is already registered and will be overwritten.", ref)
	}
	r.steps[ref] = builder
	logger.Debugf("Step '%s' was registered.", ref)
}

// RegisterCollator registers a collator builder under ref, replacing any previous one.
func (r *Registry) RegisterCollator(ref string, builder CollatorBuilder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.collators[ref]; exists {
		logger.Warnf("Collator '%s' is already registered and will be overwritten.", ref)
	}
	r.collators[ref] = builder
	logger.Debugf("Collator '%s' was registered.", ref)
}

// BuildStep creates the step registered under ref.
func (r *Registry) BuildStep(ref string, properties map[string]interface{}) (extract.Step, error) {
	r.mu.RLock()
	builder, ok := r.steps[ref]
	r.mu.RUnlock()
	if !ok {
		return nil, exception.NewConfigError(moduleName, fmt.Sprintf("unknown step '%s' (known: %v)", ref, r.StepRefs()), nil)
	}
	s, err := builder(properties)
	if err != nil {
		return nil, exception.NewConfigError(moduleName, fmt.Sprintf("invalid properties for step '%s'", ref), err)
	}
	return s, nil
}

// BuildCollator creates the collator registered under ref.
func (r *Registry) BuildCollator(ref string, properties map[string]interface{}) (extract.Collator, error) {
	r.mu.RLock()
	builder, ok := r.collators[ref]
	r.mu.RUnlock()
	if !ok {
		return nil, exception.NewConfigError(moduleName, fmt.Sprintf("unknown collator '%s'", ref), nil)
	}
	c, err := builder(properties)
	if err != nil {
		return nil, exception.NewConfigError(moduleName, fmt.Sprintf("invalid properties for collator '%s'", ref), err)
	}
	return c, nil
}

// StepRefs returns the registered step names, sorted.
func (r *Registry) StepRefs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refs := make([]string, 0, len(r.steps))
	for ref := range r.steps {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// bind decodes properties into target; a nil map decodes to the zero value.
func bind(properties map[string]interface{}, target interface{}) error {
	if properties == nil {
		properties = map[string]interface{}{}
	}
	return configbinder.BindProperties(properties, target)
}
