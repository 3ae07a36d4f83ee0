package validate

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// RuleSet binds validators to dot-delimited payload paths. Evaluation runs
// every bound validator and collects every error; a payload with defects at
// three paths reports all three.
//
// A RuleSet is safe for concurrent evaluation once built. Add and Require are
// guarded for convenience, but the expected pattern is build once, then share.
type RuleSet struct {
	mu       sync.RWMutex
	rules    map[string][]Validator
	required map[string]bool
}

// NewRuleSet creates an empty rule set.
func NewRuleSet() *RuleSet {
	return &RuleSet{
		rules:    make(map[string][]Validator),
		required: make(map[string]bool),
	}
}

// Add binds validators to a payload path. Repeated calls append.
func (rs *RuleSet) Add(path string, validators ...Validator) *RuleSet {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.rules[path] = append(rs.rules[path], validators...)
	return rs
}

// Require marks a path as mandatory. Missing optional paths are skipped;
// missing required paths produce a "required" error.
func (rs *RuleSet) Require(path string) *RuleSet {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.required[path] = true
	if _, ok := rs.rules[path]; !ok {
		rs.rules[path] = nil
	}
	return rs
}

// Len returns the number of paths with bound rules.
func (rs *RuleSet) Len() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.rules)
}

// Evaluate runs the full rule set against a payload and returns every
// validation error found, ordered by path for stable output. An empty result
// means the payload passed.
func (rs *RuleSet) Evaluate(data map[string]any) []Error {
	rs.mu.RLock()
	paths := make([]string, 0, len(rs.rules))
	for path := range rs.rules {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	rs.mu.RUnlock()

	root := NewContext(data)

	var errs []Error
	for _, path := range paths {
		rs.mu.RLock()
		validators := rs.rules[path]
		required := rs.required[path]
		rs.mu.RUnlock()

		value, ok := lookupPath(data, path)
		if !ok {
			if required {
				errs = append(errs, Error{Path: path, Message: "Field is required", Code: "required"})
			}
			continue
		}

		ctx := &Context{Value: value, Path: path, Parent: root}
		for _, v := range validators {
			errs = append(errs, v.Validate(ctx)...)
		}
	}
	return errs
}

// ruleSpec is the YAML shape of one declarative rule.
type ruleSpec struct {
	Path     string   `yaml:"path"`
	Required bool     `yaml:"required"`
	Type     string   `yaml:"type"`
	Min      *float64 `yaml:"min"`
	Max      *float64 `yaml:"max"`
	Pattern  string   `yaml:"pattern"`
}

// rulesFile is the YAML document shape for LoadRules.
type rulesFile struct {
	Rules []ruleSpec `yaml:"rules"`
}

// LoadRules builds a rule set from declarative YAML:
//
//	rules:
//	  - path: server.port
//	    required: true
//	    type: int
//	    min: 1024
//	    max: 65535
//	  - path: database.url
//	    pattern: "postgres://.+"
//
// Custom predicates cannot be expressed in YAML; bind those with Add after
// loading.
func LoadRules(r io.Reader) (*RuleSet, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}

	var file rulesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}

	rs := NewRuleSet()
	for i, rule := range file.Rules {
		if rule.Path == "" {
			return nil, fmt.Errorf("rule %d: path is required", i)
		}
		if rule.Required {
			rs.Require(rule.Path)
		}
		if rule.Type != "" {
			kind := Kind(rule.Type)
			if !knownKind(kind) {
				return nil, fmt.Errorf("rule %d (%s): unknown type %q", i, rule.Path, rule.Type)
			}
			rs.Add(rule.Path, Type(kind))
		}
		if rule.Min != nil || rule.Max != nil {
			min, max := -maxBound, maxBound
			if rule.Min != nil {
				min = *rule.Min
			}
			if rule.Max != nil {
				max = *rule.Max
			}
			rs.Add(rule.Path, Range(min, max))
		}
		if rule.Pattern != "" {
			pv, err := Pattern(rule.Pattern)
			if err != nil {
				return nil, fmt.Errorf("rule %d (%s): %w", i, rule.Path, err)
			}
			rs.Add(rule.Path, pv)
		}
	}
	return rs, nil
}

// LoadRulesFile is LoadRules for a path on disk.
func LoadRulesFile(path string) (*RuleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rules file: %w", err)
	}
	defer f.Close()
	return LoadRules(f)
}

// maxBound caps half-open YAML ranges. Large enough for any practical
// configuration value while still printing cleanly.
const maxBound = 1e308
