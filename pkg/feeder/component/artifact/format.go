// Package artifact reads and writes extraction artifacts: delimited text with a header line,
// one record per line, COPY-text escaping, and a reserved token for NULL.
package artifact

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	model "github.com/tigerroll/feeder/pkg/feeder/core/domain/model"
)

const (
	// Extension is appended to every artifact name.
	Extension = ".rpt"
	// DefaultDelimiter separates fields.
	DefaultDelimiter = '\t'
	// DefaultNullToken marks a NULL field.
	DefaultNullToken = `\N`
)

// Format describes how fields are encoded.
type Format struct {
	Delimiter rune
	NullToken string
	// Trusting writes string values verbatim. The caller guarantees they contain no delimiter,
	// backslash or line break, and rows are not width-checked.
	Trusting bool
}

// DefaultFormat returns TAB-delimited, `\N`-for-NULL encoding.
func DefaultFormat() Format {
	return Format{Delimiter: DefaultDelimiter, NullToken: DefaultNullToken}
}

// NewFormat builds a Format from configuration strings.
func NewFormat(delimiter, nullToken string, trusting bool) (Format, error) {
	if utf8.RuneCountInString(delimiter) != 1 {
		return Format{}, fmt.Errorf("delimiter must be exactly one character, got %q", delimiter)
	}
	d, _ := utf8.DecodeRuneInString(delimiter)
	f := Format{Delimiter: d, NullToken: nullToken, Trusting: trusting}
	return f, f.Validate()
}

// Validate checks that NULL, the delimiter and escaped data can never be confused.
func (f Format) Validate() error {
	switch f.Delimiter {
	case '\\', '\n', '\r', 0:
		return fmt.Errorf("delimiter %q is reserved", f.Delimiter)
	case 'n', 'r', 't':
		return fmt.Errorf("delimiter %q is an escape letter", f.Delimiter)
	}
	if !strings.HasPrefix(f.NullToken, `\`) || len(f.NullToken) < 2 {
		return fmt.Errorf("null token must start with a backslash followed by at least one character, got %q", f.NullToken)
	}
	second, _ := utf8.DecodeRuneInString(f.NullToken[1:])
	switch second {
	case 'n', 'r', 't', '\\', f.Delimiter:
		return fmt.Errorf("null token %q collides with an escape sequence", f.NullToken)
	}
	if strings.ContainsRune(f.NullToken, f.Delimiter) || strings.ContainsAny(f.NullToken, "\n\r") {
		return fmt.Errorf("null token %q contains a delimiter or line break", f.NullToken)
	}
	return nil
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// Name returns the artifact name for a table, scoped by key when key is non-nil:
// "<table>.rpt" or "<table>.<keyField>.<keyValue>.rpt".
func Name(table string, key *model.KeyContext) string {
	if key == nil {
		return sanitize(table) + Extension
	}
	return fmt.Sprintf("%s.%s.%s%s", sanitize(table), sanitize(key.Field), sanitize(fmt.Sprint(key.Value)), Extension)
}

func sanitize(s string) string {
	s = unsafeNameChars.ReplaceAllString(s, "_")
	s = strings.ReplaceAll(s, "..", "_")
	if s == "" {
		return "_"
	}
	return s
}
