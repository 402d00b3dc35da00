package canon

import (
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface over the types allowed in canonical payloads.
// Only Str, Int, Bool, Arr, and Obj implement it. There is deliberately no
// float variant - floats break bit-identical replay, so quantities that look
// fractional (confidence) are carried as fixed-point integers.
type Value interface {
	canonValue()
}

// Str is a string value.
type Str string

func (Str) canonValue() {}

// Int is an integer value. Always int64, never float64.
type Int int64

func (Int) canonValue() {}

// Bool is a boolean value.
type Bool bool

func (Bool) canonValue() {}

// Arr is an ordered list of values.
type Arr []Value

func (Arr) canonValue() {}

// Obj is a string-keyed map of values.
// Use SortedKeys for deterministic iteration.
type Obj map[string]Value

func (Obj) canonValue() {}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings compares UTF-8 bytes, which produces a DIFFERENT order
// for strings containing supplementary-plane characters.
func (o Obj) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

// compareUTF16 compares strings by UTF-16 code units per RFC 8785.
func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := len(a16)
	if len(b16) < n {
		n = len(b16)
	}
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// StrArr builds an Arr from plain strings.
func StrArr(ss ...string) Arr {
	arr := make(Arr, len(ss))
	for i, s := range ss {
		arr[i] = Str(s)
	}
	return arr
}
