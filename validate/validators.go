package validate

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Kind names the payload types a TypeValidator can check. Payloads travel as
// JSON, so the kinds mirror JSON's type system with int split out of number.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindMap    Kind = "map"
	KindList   Kind = "list"
)

// knownKind reports whether k names one of the declared kinds.
func knownKind(k Kind) bool {
	switch k {
	case KindString, KindInt, KindFloat, KindBool, KindMap, KindList:
		return true
	}
	return false
}

// TypeValidator checks that a value has the expected kind. JSON decoding
// produces float64 for all numbers, so KindInt accepts any numeric value
// without a fractional part.
type TypeValidator struct {
	Expected Kind
}

// Type creates a validator that checks value kind.
func Type(expected Kind) *TypeValidator {
	return &TypeValidator{Expected: expected}
}

// Validate implements Validator.
func (v *TypeValidator) Validate(ctx *Context) []Error {
	if matchesKind(ctx.Value, v.Expected) {
		return nil
	}
	return []Error{{
		Path:    ctx.Path,
		Message: fmt.Sprintf("Value must be of type %s, got %s", v.Expected, kindOf(ctx.Value)),
		Code:    "type",
	}}
}

// RangeValidator checks that a numeric value falls within [Min, Max]
// inclusive. Non-numeric values fail with a type error rather than a range
// error so the caller can tell the two defects apart.
type RangeValidator struct {
	Min float64
	Max float64
}

// Range creates a validator for an inclusive numeric interval.
func Range(min, max float64) *RangeValidator {
	return &RangeValidator{Min: min, Max: max}
}

// Validate implements Validator.
func (v *RangeValidator) Validate(ctx *Context) []Error {
	n, ok := asFloat(ctx.Value)
	if !ok {
		return []Error{{
			Path:    ctx.Path,
			Message: fmt.Sprintf("Value must be numeric, got %s", kindOf(ctx.Value)),
			Code:    "type",
		}}
	}
	if n < v.Min || n > v.Max {
		return []Error{{
			Path:    ctx.Path,
			Message: fmt.Sprintf("Value must be between %s and %s", formatNumber(v.Min), formatNumber(v.Max)),
			Code:    "range",
		}}
	}
	return nil
}

// PatternValidator checks that a string value matches a regular expression in
// full. Partial matches fail.
type PatternValidator struct {
	expr string
	re   *regexp.Regexp
}

// Pattern compiles a full-match pattern validator. The expression is anchored
// so "v[0-9]+" rejects "xv1x".
func Pattern(expr string) (*PatternValidator, error) {
	re, err := regexp.Compile(`\A(?:` + expr + `)\z`)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", expr, err)
	}
	return &PatternValidator{expr: expr, re: re}, nil
}

// MustPattern is Pattern for statically known expressions. Panics on a
// malformed expression.
func MustPattern(expr string) *PatternValidator {
	v, err := Pattern(expr)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate implements Validator.
func (v *PatternValidator) Validate(ctx *Context) []Error {
	s, ok := ctx.Value.(string)
	if !ok {
		return []Error{{
			Path:    ctx.Path,
			Message: fmt.Sprintf("Value must be a string, got %s", kindOf(ctx.Value)),
			Code:    "type",
		}}
	}
	if !v.re.MatchString(s) {
		return []Error{{
			Path:    ctx.Path,
			Message: fmt.Sprintf("Value must match pattern %q", v.expr),
			Code:    "pattern",
		}}
	}
	return nil
}

// CustomValidator wraps a caller-supplied predicate. The predicate must be
// pure and must not mutate the value it inspects.
type CustomValidator struct {
	Predicate func(ctx *Context) bool
	Message   string
}

// Custom creates a validator from a predicate and failure message.
func Custom(predicate func(ctx *Context) bool, message string) *CustomValidator {
	return &CustomValidator{Predicate: predicate, Message: message}
}

// Validate implements Validator.
func (v *CustomValidator) Validate(ctx *Context) []Error {
	if v.Predicate == nil || v.Predicate(ctx) {
		return nil
	}
	return []Error{{Path: ctx.Path, Message: v.Message, Code: "custom"}}
}

// CompositeValidator runs every child against the same context and
// concatenates their errors in child order. It never short-circuits: a value
// failing three children yields three errors.
type CompositeValidator struct {
	children []Validator
}

// All composes validators that must all pass.
func All(children ...Validator) *CompositeValidator {
	return &CompositeValidator{children: children}
}

// Append adds children to the composite and returns it for chaining.
func (v *CompositeValidator) Append(children ...Validator) *CompositeValidator {
	v.children = append(v.children, children...)
	return v
}

// Validate implements Validator.
func (v *CompositeValidator) Validate(ctx *Context) []Error {
	var errs []Error
	for _, child := range v.children {
		errs = append(errs, child.Validate(ctx)...)
	}
	return errs
}

// matchesKind reports whether a JSON-decoded value has the given kind.
func matchesKind(value any, kind Kind) bool {
	switch kind {
	case KindString:
		_, ok := value.(string)
		return ok
	case KindBool:
		_, ok := value.(bool)
		return ok
	case KindMap:
		_, ok := value.(map[string]any)
		return ok
	case KindList:
		_, ok := value.([]any)
		return ok
	case KindFloat:
		_, ok := asFloat(value)
		return ok
	case KindInt:
		n, ok := asFloat(value)
		return ok && n == math.Trunc(n)
	default:
		return false
	}
}

// kindOf names a value's kind for error messages.
func kindOf(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case map[string]any:
		return "map"
	case []any:
		return "list"
	case float64:
		if v == math.Trunc(v) {
			return "int"
		}
		return "float"
	case float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "number"
	default:
		return strings.TrimPrefix(fmt.Sprintf("%T", value), "*")
	}
}

// asFloat widens any numeric value to float64.
func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

// formatNumber renders a bound without a trailing ".0" for integral values.
func formatNumber(n float64) string {
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}
