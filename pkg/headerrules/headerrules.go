// Package headerrules loads a YAML-declared list of response header
// rewrite commands and applies them to a header set in order. It is the
// Go-native counterpart of h2o's header.add/header.append/header.merge/
// header.set/header.setifempty/header.unset configuration directives.
package headerrules

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Field is a single header name/value pair, in the same shape as
// pkg/http2.HeaderField — headerrules is deliberately independent of
// pkg/http2 so it can be reused by any caller with a header list.
type Field struct {
	Name  string
	Value string
}

// Command identifies which rewrite a Rule performs.
type Command string

const (
	CommandAdd         Command = "add"
	CommandAppend      Command = "append"
	CommandMerge       Command = "merge"
	CommandSet         Command = "set"
	CommandSetIfEmpty  Command = "setifempty"
	CommandUnset       Command = "unset"
)

// Rule is one entry of a header rewrite document. Name is always
// lower-cased on load, mirroring headers.c's extract_name, which
// normalizes every configured header name before registering it.
type Rule struct {
	Command Command `yaml:"cmd"`
	Name    string  `yaml:"name"`
	Value   string  `yaml:"value"`
}

// Set is an ordered list of Rules, applied left to right.
type Set []Rule

// Parse reads a YAML document — a top-level list of rules — into a Set.
// An unrecognized cmd or a rule missing the fields it requires (every
// command but unset requires a value; every command requires a name) is
// rejected at parse time rather than deferred to Apply.
func Parse(doc []byte) (Set, error) {
	var rules Set
	if err := yaml.Unmarshal(doc, &rules); err != nil {
		return nil, fmt.Errorf("headerrules: %w", err)
	}
	for i := range rules {
		rules[i].Name = strings.ToLower(strings.TrimSpace(rules[i].Name))
		if rules[i].Name == "" {
			return nil, fmt.Errorf("headerrules: rule %d: empty header name", i)
		}
		switch rules[i].Command {
		case CommandAdd, CommandAppend, CommandMerge, CommandSet, CommandSetIfEmpty:
			if rules[i].Value == "" {
				return nil, fmt.Errorf("headerrules: rule %d (%s %s): value is required", i, rules[i].Command, rules[i].Name)
			}
		case CommandUnset:
			// value, if given, is ignored
		default:
			return nil, fmt.Errorf("headerrules: rule %d: unknown cmd %q", i, rules[i].Command)
		}
	}
	return rules, nil
}

// Apply runs every rule in the set, in order, against fields and returns
// the resulting header list. fields is never mutated in place.
func (s Set) Apply(fields []Field) []Field {
	out := append([]Field(nil), fields...)
	for _, rule := range s {
		out = rule.apply(out)
	}
	return out
}

func (r Rule) apply(fields []Field) []Field {
	switch r.Command {
	case CommandAdd:
		return append(fields, Field{Name: r.Name, Value: r.Value})

	case CommandAppend:
		for i := range fields {
			if fields[i].Name == r.Name {
				fields[i].Value = fields[i].Value + ", " + r.Value
				return fields
			}
		}
		return append(fields, Field{Name: r.Name, Value: r.Value})

	case CommandMerge:
		for i := range fields {
			if fields[i].Name == r.Name {
				for _, existing := range strings.Split(fields[i].Value, ",") {
					if strings.TrimSpace(existing) == r.Value {
						return fields
					}
				}
				fields[i].Value = fields[i].Value + ", " + r.Value
				return fields
			}
		}
		return append(fields, Field{Name: r.Name, Value: r.Value})

	case CommandSet:
		fields = removeAll(fields, r.Name)
		return append(fields, Field{Name: r.Name, Value: r.Value})

	case CommandSetIfEmpty:
		for _, f := range fields {
			if f.Name == r.Name {
				return fields
			}
		}
		return append(fields, Field{Name: r.Name, Value: r.Value})

	case CommandUnset:
		return removeAll(fields, r.Name)
	}
	return fields
}

func removeAll(fields []Field, name string) []Field {
	out := fields[:0]
	for _, f := range fields {
		if f.Name != name {
			out = append(out, f)
		}
	}
	return out
}
