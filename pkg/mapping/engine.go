package mapping

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/harrisonrobin/todoist-notion-sync/pkg/model"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/notion"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/util"
	"github.com/jomei/notionapi"
)

// LabelResolver maps a source label to the page id of the matching tag.
type LabelResolver interface {
	Lookup(ctx context.Context, label string) (string, bool, error)
}

// Engine turns task fields into destination properties and content blocks.
type Engine struct {
	spec     *Spec
	schema   notion.Schema
	labels   LabelResolver
	location *time.Location
	logger   *log.Logger

	// ConvertMarkdownLinks turns markdown and bare links in text values into
	// hyperlinked rich text.
	ConvertMarkdownLinks bool
}

// NewEngine builds an engine. labels may be nil when no field uses the
// map-by-name strategy.
func NewEngine(spec *Spec, schema notion.Schema, labels LabelResolver, loc *time.Location, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[mapping] ", log.LstdFlags)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{
		spec:                 spec,
		schema:               schema,
		labels:               labels,
		location:             loc,
		logger:               logger,
		ConvertMarkdownLinks: true,
	}
}

// output collects the values emitted for one destination name.
type output struct {
	name   string
	kind   notion.Kind
	values [][]util.Span
}

// ParsePropList maps every value of field. Values that cannot be formatted
// are skipped and reported in the returned error; the remaining values are
// still mapped. A field without a rule maps to nothing.
func (e *Engine) ParsePropList(ctx context.Context, taskID, field string, values []any) (notionapi.Properties, []notionapi.Block, error) {
	rule, ok := e.spec.Rule(field)
	if !ok {
		return nil, nil, nil
	}

	var outputs []*output
	byName := make(map[string]*output)
	var errs []error

	emit := func(raw any, target Target, spans []util.Span) {
		kind, err := notion.ParseKind(target.Type)
		if err != nil {
			errs = append(errs, &MappingError{TaskID: taskID, Field: field, Value: raw, Err: err})
			return
		}
		// format each value on its own so one bad value does not sink the rest
		if _, err := kind.Format(spans, e.location); err != nil {
			errs = append(errs, &MappingError{TaskID: taskID, Field: field, Value: raw, Err: err})
			return
		}
		out, ok := byName[target.Name]
		if !ok {
			out = &output{name: target.Name, kind: kind}
			byName[target.Name] = out
			outputs = append(outputs, out)
		}
		out.values = append(out.values, spans)
	}

	for _, raw := range values {
		target, overridden := rule.Resolve(keyOf(raw))

		if overridden && target.Value != nil {
			emit(raw, target, []util.Span{{Text: stringify(target.Value)}})
			continue
		}

		if !overridden {
			switch rule.Strategy() {
			case StrategyIgnore:
				e.logger.Printf("task %s: no mapping for %s value %v, skipping", taskID, field, raw)
				continue
			case StrategyMapByName:
				if id, ok := e.lookupLabel(ctx, taskID, field, raw); ok {
					emit(raw, target, []util.Span{{PageID: id}})
					continue
				}
			case StrategyValueAsIs:
			}
		}

		spans, err := e.valueSpans(rule, raw, !overridden)
		if err != nil {
			errs = append(errs, &MappingError{TaskID: taskID, Field: field, Value: raw, Err: err})
			continue
		}
		emit(raw, target, spans)
	}

	props := notionapi.Properties{}
	var blocks []notionapi.Block
	for _, out := range outputs {
		// a block has room for every value
		if !e.schema.Has(out.name) {
			blocks = append(blocks, notion.Section(field, joinValues(out.values))...)
			continue
		}

		spans := out.values[0]
		if out.kind.Multi() {
			spans = nil
			for _, v := range out.values {
				spans = append(spans, v...)
			}
		} else if len(out.values) > 1 {
			e.logger.Printf("WARNING: task %s: %s is a %s property, keeping the first of %d values",
				taskID, out.name, out.kind, len(out.values))
		}
		kind := out.kind
		if k, ok := e.schema.Kind(out.name); ok && k != kind {
			e.logger.Printf("WARNING: %s is a %s property, mapping file says %s", out.name, k, kind)
			kind = k
		}
		prop, err := kind.Format(spans, e.location)
		if err != nil {
			errs = append(errs, &MappingError{TaskID: taskID, Field: field, Value: util.PlainSpans(spans), Err: err})
			continue
		}
		props[out.name] = prop
	}

	return props, blocks, errors.Join(errs...)
}

// joinValues packs every value into one span list, separated by commas.
func joinValues(values [][]util.Span) []util.Span {
	var spans []util.Span
	for i, v := range values {
		if i > 0 {
			spans = append(spans, util.Span{Text: ", "})
		}
		spans = append(spans, v...)
	}
	return spans
}

// MapTask maps every field of the mapping file. Mapping errors are logged
// with the task identity and the field is left out.
func (e *Engine) MapTask(ctx context.Context, task *model.Task) (notionapi.Properties, []notionapi.Block) {
	props := notionapi.Properties{}
	var blocks []notionapi.Block
	for _, field := range e.spec.FieldNames() {
		values, ok := task.Field(field)
		if !ok || len(values) == 0 {
			continue
		}
		p, b, err := e.ParsePropList(ctx, task.ID, field, values)
		if err != nil {
			e.logger.Printf("WARNING: %v", err)
		}
		for name, prop := range p {
			if _, dup := props[name]; dup {
				e.logger.Printf("WARNING: task %s: %s is mapped from several fields, %s wins", task.ID, name, field)
			}
			props[name] = prop
		}
		blocks = append(blocks, b...)
	}
	return props, blocks
}

// UpdateProperties recomputes fields for task and returns the properties
// whose value differs from page. Values are compared through their parsed
// text form, so two different inputs rendering to the same text are treated
// as equal. Content block targets are never part of the patch.
func (e *Engine) UpdateProperties(ctx context.Context, page *notionapi.Page, task *model.Task, fields []string) notionapi.Properties {
	patch := notionapi.Properties{}
	for _, field := range fields {
		rule, ok := e.spec.Rule(field)
		if !ok {
			continue
		}
		values, _ := task.Field(field)

		var props notionapi.Properties
		if len(values) == 0 {
			props = e.cleared(rule)
		} else {
			var err error
			props, _, err = e.ParsePropList(ctx, task.ID, field, values)
			if err != nil {
				e.logger.Printf("WARNING: %v", err)
			}
		}

		for name, prop := range props {
			kind, ok := e.schema.Kind(name)
			if !ok {
				continue
			}
			newValue := kind.Parse(prop)
			oldValue := ""
			if old, ok := page.Properties[name]; ok {
				oldValue = kind.Parse(old)
			}
			if newValue != oldValue {
				patch[name] = prop
			}
		}
	}
	return patch
}

// cleared returns the value that empties the default target of rule, if the
// target is a clearable property.
func (e *Engine) cleared(rule *FieldRule) notionapi.Properties {
	if rule.Strategy() == StrategyIgnore || !e.schema.Has(rule.Defaults.Name) {
		return nil
	}
	kind, ok := e.schema.Kind(rule.Defaults.Name)
	if !ok {
		return nil
	}
	prop, ok := kind.Empty()
	if !ok {
		return nil
	}
	return notionapi.Properties{rule.Defaults.Name: prop}
}

func (e *Engine) lookupLabel(ctx context.Context, taskID, field string, raw any) (string, bool) {
	if field != "labels" || e.labels == nil {
		return "", false
	}
	id, ok, err := e.labels.Lookup(ctx, stringify(raw))
	if err != nil {
		e.logger.Printf("WARNING: task %s: label lookup for %v failed: %v", taskID, raw, err)
		return "", false
	}
	return id, ok
}

// valueSpans formats a raw value as-is. The link template sees the raw value,
// the expression (only for values without an override) may transform it.
func (e *Engine) valueSpans(rule *FieldRule, raw any, useExpr bool) ([]util.Span, error) {
	link := ""
	if rule.Link != "" {
		link = renderLink(rule.Link, stringify(raw))
	}

	value := raw
	if useExpr && rule.Defaults.Expression != "" {
		expr, err := rule.compiled()
		if err != nil {
			return nil, err
		}
		if value, err = expr.Eval(raw); err != nil {
			return nil, fmt.Errorf("expression %q: %w", expr, err)
		}
	}

	text := stringify(value)
	if s, ok := value.(string); ok && e.ConvertMarkdownLinks && util.HasLink(s) {
		return util.ToRichSpans(s), nil
	}
	if link != "" {
		return []util.Span{{Text: text, URL: link}}, nil
	}
	return []util.Span{{Text: text}}, nil
}

func (r *FieldRule) compiled() (*Expr, error) {
	if r.expr == nil {
		expr, err := CompileExpr(r.Defaults.Expression)
		if err != nil {
			return nil, err
		}
		r.expr = expr
	}
	return r.expr, nil
}

// renderLink fills a link template. Both {} and {value} are placeholders.
func renderLink(template, value string) string {
	out := strings.ReplaceAll(template, "{value}", value)
	return strings.ReplaceAll(out, "{}", value)
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64, float32:
		return keyOf(x)
	}
	return fmt.Sprint(v)
}
