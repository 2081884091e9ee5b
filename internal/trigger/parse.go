package trigger

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Parse decodes a stored trigger into a Rule. Any unknown field, comparator,
// mode or node shape fails the whole rule with an error wrapping ErrInvalidRule.
func Parse(data []byte) (*Rule, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if top == nil {
		return nil, fmt.Errorf("%w: rule must be an object", ErrInvalidRule)
	}

	rule := &Rule{Mode: ModeAny}
	for key, raw := range top {
		switch key {
		case "mode":
			var m string
			if err := json.Unmarshal(raw, &m); err != nil {
				return nil, fmt.Errorf("%w: mode: %v", ErrInvalidRule, err)
			}
			rule.Mode = Mode(m)
			if !rule.Mode.valid() {
				return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidRule, m)
			}
		case "when":
			node, err := parseNode(raw, 1)
			if err != nil {
				return nil, err
			}
			rule.When = node
		default:
			return nil, fmt.Errorf("%w: unknown key %q", ErrInvalidRule, key)
		}
	}
	if rule.When == nil {
		return nil, fmt.Errorf("%w: missing \"when\"", ErrInvalidRule)
	}
	return rule, nil
}

// ParseString is Parse for trigger text read from storage.
func ParseString(s string) (*Rule, error) {
	return Parse([]byte(s))
}

func parseNode(raw json.RawMessage, depth int) (Node, error) {
	if depth > MaxDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d", ErrInvalidRule, MaxDepth)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: node: %v", ErrInvalidRule, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: node must be an object", ErrInvalidRule)
	}

	if body, ok := obj["and"]; ok {
		if len(obj) != 1 {
			return nil, fmt.Errorf("%w: \"and\" node has extra keys", ErrInvalidRule)
		}
		children, err := parseChildren(body, depth)
		if err != nil {
			return nil, err
		}
		return And{Children: children}, nil
	}
	if body, ok := obj["or"]; ok {
		if len(obj) != 1 {
			return nil, fmt.Errorf("%w: \"or\" node has extra keys", ErrInvalidRule)
		}
		children, err := parseChildren(body, depth)
		if err != nil {
			return nil, err
		}
		return Or{Children: children}, nil
	}
	if body, ok := obj["not"]; ok {
		if len(obj) != 1 {
			return nil, fmt.Errorf("%w: \"not\" node has extra keys", ErrInvalidRule)
		}
		child, err := parseNode(body, depth+1)
		if err != nil {
			return nil, err
		}
		return Not{Child: child}, nil
	}
	if _, ok := obj["field"]; ok {
		return parsePredicate(obj)
	}
	return nil, fmt.Errorf("%w: unrecognized node", ErrInvalidRule)
}

func parseChildren(raw json.RawMessage, depth int) ([]Node, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: children: %v", ErrInvalidRule, err)
	}
	if items == nil {
		return nil, fmt.Errorf("%w: children must be an array", ErrInvalidRule)
	}
	nodes := make([]Node, 0, len(items))
	for _, item := range items {
		n, err := parseNode(item, depth+1)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func parsePredicate(obj map[string]json.RawMessage) (Node, error) {
	for key := range obj {
		if key != "field" && key != "op" && key != "value" {
			return nil, fmt.Errorf("%w: unknown predicate key %q", ErrInvalidRule, key)
		}
	}

	var field, op string
	if err := json.Unmarshal(obj["field"], &field); err != nil {
		return nil, fmt.Errorf("%w: field: %v", ErrInvalidRule, err)
	}
	f := Field(field)
	if !f.valid() {
		return nil, fmt.Errorf("%w: unknown field %q", ErrInvalidRule, field)
	}

	rawOp, ok := obj["op"]
	if !ok {
		return nil, fmt.Errorf("%w: predicate on %q has no op", ErrInvalidRule, field)
	}
	if err := json.Unmarshal(rawOp, &op); err != nil {
		return nil, fmt.Errorf("%w: op: %v", ErrInvalidRule, err)
	}
	cmp, ok := comparatorAliases[op]
	if !ok {
		return nil, fmt.Errorf("%w: unknown comparator %q", ErrInvalidRule, op)
	}

	rawValue, ok := obj["value"]
	if !ok || bytes.Equal(bytes.TrimSpace(rawValue), []byte("null")) {
		return nil, fmt.Errorf("%w: predicate on %q has no value", ErrInvalidRule, field)
	}
	p := Predicate{Field: f, Op: cmp}
	if f.IsBool() {
		var b bool
		if err := json.Unmarshal(rawValue, &b); err != nil {
			return nil, fmt.Errorf("%w: %q needs a boolean value: %v", ErrInvalidRule, field, err)
		}
		if b {
			p.Threshold = 1
		}
	} else {
		if err := json.Unmarshal(rawValue, &p.Threshold); err != nil {
			return nil, fmt.Errorf("%w: %q needs an integer value: %v", ErrInvalidRule, field, err)
		}
	}
	return p, nil
}

// MarshalJSON implements json.Marshaler.
func (p Predicate) MarshalJSON() ([]byte, error) {
	var value any = p.Threshold
	if p.Field.IsBool() {
		value = p.Threshold != 0
	}
	return json.Marshal(struct {
		Field Field      `json:"field"`
		Op    Comparator `json:"op"`
		Value any        `json:"value"`
	}{p.Field, p.Op, value})
}

// MarshalJSON implements json.Marshaler.
func (a And) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string][]Node{"and": nonNil(a.Children)})
}

// MarshalJSON implements json.Marshaler.
func (o Or) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string][]Node{"or": nonNil(o.Children)})
}

// MarshalJSON implements json.Marshaler.
func (n Not) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]Node{"not": n.Child})
}

// MarshalJSON implements json.Marshaler. An unset mode is written as "any".
func (r Rule) MarshalJSON() ([]byte, error) {
	mode := r.Mode
	if mode == "" {
		mode = ModeAny
	}
	return json.Marshal(struct {
		Mode Mode `json:"mode"`
		When Node `json:"when"`
	}{mode, r.When})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Rule) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*r = *parsed
	return nil
}

func nonNil(nodes []Node) []Node {
	if nodes == nil {
		return []Node{}
	}
	return nodes
}
