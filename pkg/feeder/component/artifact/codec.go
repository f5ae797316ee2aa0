package artifact

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// timeLayout is accepted by PostgreSQL, MySQL and SQLite date/time columns.
const timeLayout = "2006-01-02 15:04:05.999999999"

// encodeField appends the encoded form of v to b.
func (f Format) encodeField(b []byte, v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return append(b, f.NullToken...), nil
	case string:
		if f.Trusting {
			return append(b, t...), nil
		}
		return f.escape(b, t), nil
	case []byte:
		return f.encodeField(b, string(t))
	case int64:
		return strconv.AppendInt(b, t, 10), nil
	case int:
		return strconv.AppendInt(b, int64(t), 10), nil
	case int32:
		return strconv.AppendInt(b, int64(t), 10), nil
	case float64:
		return strconv.AppendFloat(b, t, 'g', -1, 64), nil
	case float32:
		return strconv.AppendFloat(b, float64(t), 'g', -1, 32), nil
	case bool:
		return strconv.AppendBool(b, t), nil
	case time.Time:
		return t.AppendFormat(b, timeLayout), nil
	case fmt.Stringer:
		return f.encodeField(b, t.String())
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func (f Format) escape(b []byte, s string) []byte {
	if !f.needsEscape(s) {
		return append(b, s...)
	}
	for _, r := range s {
		switch r {
		case '\\':
			b = append(b, '\\', '\\')
		case '\n':
			b = append(b, '\\', 'n')
		case '\r':
			b = append(b, '\\', 'r')
		case '\t':
			b = append(b, '\\', 't')
		default:
			if r == f.Delimiter {
				b = append(b, '\\')
			}
			b = utf8.AppendRune(b, r)
		}
	}
	return b
}

func (f Format) needsEscape(s string) bool {
	return strings.ContainsAny(s, "\\\n\r\t") || strings.ContainsRune(s, f.Delimiter)
}

// splitLine splits one record into raw, still-escaped fields. A backslash protects the next rune.
func (f Format) splitLine(line string) []string {
	var fields []string
	start := 0
	for i := 0; i < len(line); {
		r, size := utf8.DecodeRuneInString(line[i:])
		switch {
		case r == '\\':
			i += size
			if i < len(line) {
				_, next := utf8.DecodeRuneInString(line[i:])
				i += next
			}
		case r == f.Delimiter:
			fields = append(fields, line[start:i])
			i += size
			start = i
		default:
			i += size
		}
	}
	return append(fields, line[start:])
}

// decodeField turns a raw field into nil (the null token) or its unescaped string.
func (f Format) decodeField(raw string) (any, error) {
	if raw == f.NullToken {
		return nil, nil
	}
	if !strings.ContainsRune(raw, '\\') {
		return raw, nil
	}
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRuneInString(raw[i:])
		i += size
		if r != '\\' {
			b.WriteRune(r)
			continue
		}
		if i >= len(raw) {
			return nil, fmt.Errorf("dangling escape in field %q", raw)
		}
		e, esize := utf8.DecodeRuneInString(raw[i:])
		i += esize
		switch e {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case '\\':
			b.WriteByte('\\')
		default:
			if e != f.Delimiter {
				return nil, fmt.Errorf("unknown escape sequence \\%c in field %q", e, raw)
			}
			b.WriteRune(e)
		}
	}
	return b.String(), nil
}
