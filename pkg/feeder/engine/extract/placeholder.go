package extract

import (
	"fmt"
	"regexp"
	"strings"

	model "github.com/tigerroll/feeder/pkg/feeder/core/domain/model"
)

const (
	keyPlaceholder   = "key"
	rangePlaceholder = "range"
	// alwaysTrue replaces a placeholder that does not apply to the run.
	alwaysTrue = "1=1"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_]+)\s*\}\}`)

// placeholders returns the set of placeholder names used by query.
func placeholders(query string) map[string]bool {
	found := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(query, -1) {
		found[m[1]] = true
	}
	return found
}

// validateTemplate rejects unknown placeholder names.
func validateTemplate(query string) error {
	for name := range placeholders(query) {
		if name != keyPlaceholder && name != rangePlaceholder {
			return fmt.Errorf("unknown placeholder {{%s}}", name)
		}
	}
	return nil
}

// expandQuery replaces {{key}} and {{range}} with parameterized predicates, returning the bound
// arguments in placeholder order. A placeholder that does not apply expands to 1=1.
// keyExpr is the source expression of key.Field; rangeExpr the chunk key expression.
func expandQuery(query string, key *model.KeyContext, keyExpr string, chunk *model.ChunkRange, rangeExpr string) (string, []any, error) {
	var (
		args   []any
		errOut error
	)
	expanded := placeholderPattern.ReplaceAllStringFunc(query, func(m string) string {
		name := placeholderPattern.FindStringSubmatch(m)[1]
		switch name {
		case keyPlaceholder:
			if key == nil {
				return alwaysTrue
			}
			args = append(args, key.Value)
			return "(" + keyExpr + " = ?)"
		case rangePlaceholder:
			if chunk == nil {
				return alwaysTrue
			}
			args = append(args, chunk.Lo, chunk.Hi)
			return "(" + rangeExpr + " >= ? AND " + rangeExpr + " < ?)"
		default:
			if errOut == nil {
				errOut = fmt.Errorf("unknown placeholder {{%s}}", name)
			}
			return m
		}
	})
	if errOut != nil {
		return "", nil, errOut
	}
	if strings.Contains(expanded, "{{") {
		return "", nil, fmt.Errorf("malformed placeholder in query: %s", query)
	}
	return expanded, args, nil
}
