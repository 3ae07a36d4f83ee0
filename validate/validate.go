// Package validate provides the composable validation framework used to gate
// configuration updates.
//
// Validators implement a single capability, Validate(*Context) []Error, and
// are composed rather than subclassed. A composite validator runs every child
// and concatenates all errors, so a payload with three separate defects
// surfaces three errors in one pass. Errors are returned in a list, never
// raised as control flow: "no errors" and "validation not run" stay
// distinguishable states.
//
// Error codes are standardized:
//   - "required": field is required but missing
//   - "type": value doesn't match the expected type
//   - "range": numeric value outside the allowed bounds
//   - "pattern": string doesn't match the required pattern in full
//   - "custom": a custom predicate rejected the value
package validate

import (
	"fmt"
	"strings"

	"github.com/c360/confstream/errors"
)

// Error represents a validation error for a specific configuration path.
type Error struct {
	Path    string `json:"path"`    // Dot-delimited location within the payload
	Message string `json:"message"` // Human-readable error message
	Code    string `json:"code"`    // Machine-readable error code
}

// Context is the unit validators operate on. It carries the value under test,
// its dot-delimited path within the root payload, and a reference to the
// enclosing context so cross-field validators can inspect sibling and
// ancestor values without owning that state.
//
// Validators must not mutate Value or Parent.
type Context struct {
	Value  any
	Path   string
	Parent *Context
}

// NewContext creates a root context for a full payload.
func NewContext(value any) *Context {
	return &Context{Value: value}
}

// Child creates a context for a nested value one path segment below c.
func (c *Context) Child(segment string, value any) *Context {
	path := segment
	if c.Path != "" {
		path = c.Path + "." + segment
	}
	return &Context{Value: value, Path: path, Parent: c}
}

// Root walks the parent chain to the outermost context.
func (c *Context) Root() *Context {
	root := c
	for root.Parent != nil {
		root = root.Parent
	}
	return root
}

// Lookup resolves a dot-delimited path against the root payload, enabling
// cross-field rules. Returns the value and true if every segment resolves.
func (c *Context) Lookup(path string) (any, bool) {
	root := c.Root()
	data, ok := root.Value.(map[string]any)
	if !ok {
		return nil, false
	}
	return lookupPath(data, path)
}

// Validator is any component that can validate a context.
type Validator interface {
	Validate(ctx *Context) []Error
}

// FailedError carries the complete, never-truncated list of validation
// errors for a rejected update. It unwraps to errors.ErrValidationFailed so
// callers can test for the category with errors.Is.
type FailedError struct {
	Errors []Error
}

// Error implements the error interface.
func (e *FailedError) Error() string {
	if len(e.Errors) == 0 {
		return errors.ErrValidationFailed.Error()
	}

	parts := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		if ve.Path != "" {
			parts[i] = fmt.Sprintf("%s: %s", ve.Path, ve.Message)
		} else {
			parts[i] = ve.Message
		}
	}
	return fmt.Sprintf("%s: %s", errors.ErrValidationFailed.Error(), strings.Join(parts, "; "))
}

// Unwrap returns the validation failure sentinel.
func (e *FailedError) Unwrap() error {
	return errors.ErrValidationFailed
}

// lookupPath navigates a nested JSON-compatible map by dot-delimited path.
func lookupPath(data map[string]any, path string) (any, bool) {
	if path == "" {
		return data, true
	}

	segments := strings.Split(path, ".")
	var current any = data
	for _, segment := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
