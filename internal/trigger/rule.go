// Package trigger implements the alert trigger rule grammar and the engine that
// evaluates a rule against the listings of a market update.
//
// A rule is a finite tree of predicates over single listings, combined with
// and/or/not, plus an aggregation mode that decides how the tree is applied to
// the whole listing set.
package trigger

import (
	"errors"
	"strconv"
	"strings"

	"universalis-alerts/internal/model"
)

// SchemaVersion is the trigger_version written for rules in this grammar.
const SchemaVersion int32 = 0

// MaxDepth bounds the nesting of combinators in a parsed rule.
const MaxDepth = 32

// ErrInvalidRule is wrapped by every parse failure.
var ErrInvalidRule = errors.New("invalid trigger rule")

// Mode selects how a rule is applied across a set of listings.
type Mode string

const (
	// ModeAny matches when at least one listing satisfies the rule.
	ModeAny Mode = "any"
	// ModeAll matches when every listing satisfies the rule.
	ModeAll Mode = "all"
)

func (m Mode) valid() bool {
	return m == ModeAny || m == ModeAll
}

// Field names a listing attribute a predicate can test.
type Field string

const (
	// FieldPrice is the price per unit.
	FieldPrice Field = "price"
	// FieldQuantity is the number of units in the listing.
	FieldQuantity Field = "quantity"
	// FieldTotal is price per unit times quantity.
	FieldTotal Field = "total"
	// FieldHQ is the high-quality flag.
	FieldHQ Field = "hq"
)

func (f Field) valid() bool {
	switch f {
	case FieldPrice, FieldQuantity, FieldTotal, FieldHQ:
		return true
	}
	return false
}

// IsBool reports whether the field is a flag compared as 0/1.
func (f Field) IsBool() bool {
	return f == FieldHQ
}

// value extracts the field from a listing in its comparison domain.
func (f Field) value(l model.Listing) int64 {
	switch f {
	case FieldPrice:
		return int64(l.PricePerUnit)
	case FieldQuantity:
		return int64(l.Quantity)
	case FieldTotal:
		return l.Total()
	case FieldHQ:
		if l.HQ {
			return 1
		}
	}
	return 0
}

// Comparator is a binary ordering test between a field value and a threshold.
type Comparator string

// Comparators, in their canonical spelling.
const (
	LessThan       Comparator = "<"
	LessOrEqual    Comparator = "<="
	Equal          Comparator = "="
	GreaterOrEqual Comparator = ">="
	GreaterThan    Comparator = ">"
)

var comparatorAliases = map[string]Comparator{
	"<":   LessThan,
	"lt":  LessThan,
	"<=":  LessOrEqual,
	"lte": LessOrEqual,
	"=":   Equal,
	"==":  Equal,
	"eq":  Equal,
	">=":  GreaterOrEqual,
	"gte": GreaterOrEqual,
	">":   GreaterThan,
	"gt":  GreaterThan,
}

func (c Comparator) compare(a, b int64) bool {
	switch c {
	case LessThan:
		return a < b
	case LessOrEqual:
		return a <= b
	case Equal:
		return a == b
	case GreaterOrEqual:
		return a >= b
	case GreaterThan:
		return a > b
	}
	return false
}

// Node is one element of a rule tree. The set of implementations is closed:
// Predicate, And, Or and Not.
type Node interface {
	// Matches tests a single listing.
	Matches(l model.Listing) bool
	String() string

	node()
}

// Predicate compares one listing field against a constant.
// Threshold holds 0 or 1 for boolean fields.
type Predicate struct {
	Field     Field
	Op        Comparator
	Threshold int64
}

// And is true when every child is true. An empty And is true.
type And struct {
	Children []Node
}

// Or is true when at least one child is true. An empty Or is false.
type Or struct {
	Children []Node
}

// Not inverts its child.
type Not struct {
	Child Node
}

func (Predicate) node() {}
func (And) node()       {}
func (Or) node()        {}
func (Not) node()       {}

// Matches implements Node.
func (p Predicate) Matches(l model.Listing) bool {
	return p.Op.compare(p.Field.value(l), p.Threshold)
}

// Matches implements Node.
func (a And) Matches(l model.Listing) bool {
	for _, c := range a.Children {
		if !c.Matches(l) {
			return false
		}
	}
	return true
}

// Matches implements Node.
func (o Or) Matches(l model.Listing) bool {
	for _, c := range o.Children {
		if c.Matches(l) {
			return true
		}
	}
	return false
}

// Matches implements Node.
func (n Not) Matches(l model.Listing) bool {
	return !n.Child.Matches(l)
}

func (p Predicate) String() string {
	var v string
	if p.Field.IsBool() {
		v = strconv.FormatBool(p.Threshold != 0)
	} else {
		v = strconv.FormatInt(p.Threshold, 10)
	}
	return string(p.Field) + " " + string(p.Op) + " " + v
}

func (a And) String() string {
	return joinNodes(a.Children, " and ", "true")
}

func (o Or) String() string {
	return joinNodes(o.Children, " or ", "false")
}

func (n Not) String() string {
	return "not " + n.Child.String()
}

func joinNodes(nodes []Node, sep, empty string) string {
	switch len(nodes) {
	case 0:
		return empty
	case 1:
		return nodes[0].String()
	}
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// Rule is a parsed trigger: a predicate tree plus its aggregation mode.
// Rules are immutable once parsed.
type Rule struct {
	Mode Mode
	When Node
}

// String renders the rule the way it is shown to alert owners.
func (r *Rule) String() string {
	if r == nil || r.When == nil {
		return "<empty rule>"
	}
	if r.Mode == ModeAll {
		return "all listings where " + r.When.String()
	}
	return "any listing where " + r.When.String()
}

// Evaluate applies the rule to a listing set. See the package-level Evaluate.
func (r *Rule) Evaluate(listings []model.Listing) (float32, bool) {
	return Evaluate(r, listings)
}
