package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/model"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/notion"
	"gopkg.in/yaml.v3"
)

// Strategy decides what happens to a value without an override.
type Strategy string

const (
	StrategyIgnore    Strategy = "ignore"
	StrategyValueAsIs Strategy = "value-as-is"
	StrategyMapByName Strategy = "map-by-name"
)

// Target names the destination of a mapped value.
type Target struct {
	Name       string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Type       string `json:"type,omitempty" yaml:"type,omitempty" toml:"type,omitempty"`
	Value      any    `json:"value,omitempty" yaml:"value,omitempty" toml:"value,omitempty"`
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty" toml:"expression,omitempty"`
}

// FieldRule is the mapping of one source field.
type FieldRule struct {
	Values       map[string]Target `json:"values,omitempty" yaml:"values,omitempty" toml:"values,omitempty"`
	Defaults     Target            `json:"default_values" yaml:"default_values" toml:"default_values"`
	NoneStrategy Strategy          `json:"none_strategy,omitempty" yaml:"none_strategy,omitempty" toml:"none_strategy,omitempty"`
	Link         string            `json:"link,omitempty" yaml:"link,omitempty" toml:"link,omitempty"`

	expr *Expr
}

// Strategy returns the configured strategy, value-as-is when unset.
func (r *FieldRule) Strategy() Strategy {
	if r.NoneStrategy == "" {
		return StrategyValueAsIs
	}
	return r.NoneStrategy
}

// Resolve merges the override for key, if any, over the defaults.
func (r *FieldRule) Resolve(key string) (Target, bool) {
	t := r.Defaults
	o, ok := r.Values[key]
	if !ok {
		return t, false
	}
	if o.Name != "" {
		t.Name = o.Name
	}
	if o.Type != "" {
		t.Type = o.Type
	}
	t.Value = o.Value
	t.Expression = ""
	return t, true
}

// Spec is a loaded mapping file keyed by source field path.
type Spec struct {
	Fields map[string]*FieldRule
}

// LoadSpec reads a mapping file. The format follows the extension: .yaml or
// .yml, .toml, anything else is JSON.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("cannot read %s: %v", path, err)}
	}
	return ParseSpec(data, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
}

// ParseSpec decodes a mapping document in the given format.
func ParseSpec(data []byte, format string) (*Spec, error) {
	fields := make(map[string]*FieldRule)
	var err error
	switch format {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &fields)
	case "toml":
		_, err = toml.NewDecoder(bytes.NewReader(data)).Decode(&fields)
	default:
		err = json.Unmarshal(data, &fields)
	}
	if err != nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("malformed %s mapping: %v", format, err)}
	}
	for name, rule := range fields {
		if rule == nil {
			fields[name] = &FieldRule{}
		}
	}
	return &Spec{Fields: fields}, nil
}

// Rule returns the rule of a field.
func (s *Spec) Rule(field string) (*FieldRule, bool) {
	r, ok := s.Fields[field]
	return r, ok
}

// FieldNames returns the mapped fields in sorted order.
func (s *Spec) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for n := range s.Fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks every rule and compiles expressions. Fields in required
// must be mapped.
func (s *Spec) Validate(required ...string) error {
	for _, f := range required {
		if _, ok := s.Fields[f]; !ok {
			return &ConfigurationError{Field: f, Reason: "required field is not mapped"}
		}
	}
	for _, name := range s.FieldNames() {
		rule := s.Fields[name]
		if !model.IsField(name) {
			return &ConfigurationError{Field: name, Reason: "unknown task field"}
		}
		switch rule.Strategy() {
		case StrategyIgnore, StrategyValueAsIs, StrategyMapByName:
		default:
			return &ConfigurationError{Field: name, Reason: fmt.Sprintf("unknown none_strategy %q", rule.NoneStrategy)}
		}
		if rule.Strategy() != StrategyIgnore {
			if rule.Defaults.Name == "" || rule.Defaults.Type == "" {
				return &ConfigurationError{Field: name, Reason: "default_values needs name and type"}
			}
		}
		if rule.Defaults.Type != "" {
			if _, err := notion.ParseKind(rule.Defaults.Type); err != nil {
				return &ConfigurationError{Field: name, Reason: err.Error()}
			}
		}
		for key := range rule.Values {
			t, _ := rule.Resolve(key)
			if t.Name == "" {
				return &ConfigurationError{Field: name, Reason: fmt.Sprintf("override %q has no target name", key)}
			}
			if _, err := notion.ParseKind(t.Type); err != nil {
				return &ConfigurationError{Field: name, Reason: fmt.Sprintf("override %q: %v", key, err)}
			}
		}
		if rule.Defaults.Expression != "" {
			expr, err := CompileExpr(rule.Defaults.Expression)
			if err != nil {
				return &ConfigurationError{Field: name, Reason: fmt.Sprintf("expression: %v", err)}
			}
			rule.expr = expr
		}
	}
	return nil
}
