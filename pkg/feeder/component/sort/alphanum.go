// Package sort provides the "smart alpha" ordering used when sorting extracted rows:
// digit runs compare numerically, so "Zfp2" sorts before "Zfp10".
package sort

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// CompareStrings orders a and b alphanumerically. Text runs compare case-insensitively,
// digit runs compare by numeric value. Strings that are still equal compare by leading zeros
// and then byte-wise, so the order is total and deterministic.
func CompareStrings(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := a, b
	for ra != "" && rb != "" {
		ca, restA, digitsA := nextRun(ra)
		cb, restB, digitsB := nextRun(rb)
		var c int
		switch {
		case digitsA && digitsB:
			c = compareDigits(ca, cb)
		case digitsA:
			c = -1
		case digitsB:
			c = 1
		default:
			c = compareFold(ca, cb)
		}
		if c != 0 {
			return c
		}
		ra, rb = restA, restB
	}
	switch {
	case ra == "" && rb != "":
		return -1
	case ra != "" && rb == "":
		return 1
	}
	if c := compareLeadingZeros(a, b); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// LessStrings reports whether a sorts before b.
func LessStrings(a, b string) bool {
	return CompareStrings(a, b) < 0
}

// CompareValues orders RowSet values: NULL first, then numbers numerically, times chronologically,
// booleans false before true, and everything else alphanumerically by its string form.
// Values of different kinds compare by kind in that order.
func CompareValues(a, b any) int {
	ka, kb := kindOf(a), kindOf(b)
	if ka != kb {
		if ka < kb {
			return -1
		}
		return 1
	}
	switch ka {
	case kindNull:
		return 0
	case kindNumber:
		return compareNumbers(a, b)
	case kindTime:
		return a.(time.Time).Compare(b.(time.Time))
	case kindBool:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		default:
			return 1
		}
	default:
		return CompareStrings(toString(a), toString(b))
	}
}

const (
	kindNull = iota
	kindNumber
	kindTime
	kindBool
	kindText
)

func kindOf(v any) int {
	switch v.(type) {
	case nil:
		return kindNull
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return kindNumber
	case time.Time:
		return kindTime
	case bool:
		return kindBool
	default:
		return kindText
	}
}

func compareNumbers(a, b any) int {
	ia, aInt := asInt64(a)
	ib, bInt := asInt64(b)
	if aInt && bInt {
		switch {
		case ia < ib:
			return -1
		case ia > ib:
			return 1
		}
		return 0
	}
	fa, fb := asFloat64(a), asFloat64(b)
	switch {
	case fa < fb:
		return -1
	case fa > fb:
		return 1
	}
	return 0
}

func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	}
	return 0, false
}

func asFloat64(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case uint:
		return float64(t)
	case uint64:
		return float64(t)
	}
	i, _ := asInt64(v)
	return float64(i)
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(v)
	}
}

// nextRun splits s into its leading run of digits or non-digits and the remainder.
func nextRun(s string) (run, rest string, digits bool) {
	r, _ := utf8.DecodeRuneInString(s)
	digits = isDigit(r)
	i := 0
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		if isDigit(r) != digits {
			break
		}
		i += size
	}
	return s[:i], s[i:], digits
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// compareDigits compares two ASCII digit runs by numeric value without overflow.
func compareDigits(a, b string) int {
	ta, tb := strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
	if len(ta) != len(tb) {
		if len(ta) < len(tb) {
			return -1
		}
		return 1
	}
	return strings.Compare(ta, tb)
}

func compareFold(a, b string) int {
	for a != "" && b != "" {
		ra, sa := utf8.DecodeRuneInString(a)
		rb, sb := utf8.DecodeRuneInString(b)
		la, lb := unicode.ToLower(ra), unicode.ToLower(rb)
		if la != lb {
			if la < lb {
				return -1
			}
			return 1
		}
		a, b = a[sa:], b[sb:]
	}
	switch {
	case a == "" && b != "":
		return -1
	case a != "" && b == "":
		return 1
	}
	return 0
}

// compareLeadingZeros prefers the string with fewer leading zeros in its first differing digit run.
func compareLeadingZeros(a, b string) int {
	for a != "" && b != "" {
		ca, restA, da := nextRun(a)
		cb, restB, db := nextRun(b)
		if da && db {
			za, zb := len(ca)-len(strings.TrimLeft(ca, "0")), len(cb)-len(strings.TrimLeft(cb, "0"))
			if za != zb {
				if za < zb {
					return -1
				}
				return 1
			}
		}
		a, b = restA, restB
	}
	return 0
}
