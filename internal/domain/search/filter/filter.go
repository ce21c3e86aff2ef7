// Package filter builds engine filter expressions from structured conditions.
package filter

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxConditionsPerGroup is the maximum number of conditions per filter group.
const MaxConditionsPerGroup = 32

// Expression combines conditions with must/should/must_not semantics and
// renders to the engine's filter syntax.
type Expression struct {
	must    []Condition
	should  []Condition
	mustNot []Condition
}

// NewExpression validates and creates a filter Expression.
func NewExpression(must, should, mustNot []Condition) (Expression, error) {
	for name, group := range map[string][]Condition{"must": must, "should": should, "must_not": mustNot} {
		if len(group) > MaxConditionsPerGroup {
			return Expression{}, fmt.Errorf("too many %s conditions (max %d)", name, MaxConditionsPerGroup)
		}
	}
	return Expression{must: must, should: should, mustNot: mustNot}, nil
}

// Must returns the must conditions.
func (e Expression) Must() []Condition { return e.must }

// Should returns the should conditions.
func (e Expression) Should() []Condition { return e.should }

// MustNot returns the must-not conditions.
func (e Expression) MustNot() []Condition { return e.mustNot }

// IsEmpty reports whether the expression has no conditions.
func (e Expression) IsEmpty() bool {
	return len(e.must) == 0 && len(e.should) == 0 && len(e.mustNot) == 0
}

// String renders the expression. Must clauses are ANDed, should clauses are
// ORed into one parenthesized clause and must_not clauses are negated.
func (e Expression) String() string {
	var parts []string
	for _, c := range e.must {
		parts = append(parts, c.String())
	}
	if len(e.should) > 0 {
		alts := make([]string, len(e.should))
		for i, c := range e.should {
			alts[i] = c.String()
		}
		if len(alts) == 1 {
			parts = append(parts, alts[0])
		} else {
			parts = append(parts, "("+strings.Join(alts, " OR ")+")")
		}
	}
	for _, c := range e.mustNot {
		parts = append(parts, "NOT "+c.String())
	}
	return strings.Join(parts, " AND ")
}

type kind int

const (
	kindMatch kind = iota
	kindIn
	kindRange
	kindExists
)

// Condition is a single filter clause on one attribute.
type Condition struct {
	key       string
	kind      kind
	values    []string
	rangeExpr *Range
}

// NewMatch creates an equality condition.
func NewMatch(key, match string) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	if match == "" {
		return Condition{}, fmt.Errorf("match value is required for key %q", key)
	}
	return Condition{key: key, kind: kindMatch, values: []string{match}}, nil
}

// NewIn creates a set membership condition.
func NewIn(key string, values ...string) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	if len(values) == 0 {
		return Condition{}, fmt.Errorf("at least one value is required for key %q", key)
	}
	return Condition{key: key, kind: kindIn, values: values}, nil
}

// NewRange creates a numeric range condition.
func NewRange(key string, r Range) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	return Condition{key: key, kind: kindRange, rangeExpr: &r}, nil
}

// NewExists creates a condition matching documents that carry the attribute.
func NewExists(key string) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	return Condition{key: key, kind: kindExists}, nil
}

// Key returns the field name.
func (c Condition) Key() string { return c.key }

// Match returns the equality value, empty for other kinds.
func (c Condition) Match() string {
	if c.kind != kindMatch {
		return ""
	}
	return c.values[0]
}

// Values returns the values of a match or set condition.
func (c Condition) Values() []string { return c.values }

// Range returns the numeric range expression.
func (c Condition) Range() *Range { return c.rangeExpr }

// IsMatch reports whether this is an equality condition.
func (c Condition) IsMatch() bool { return c.kind == kindMatch }

// IsRange reports whether this is a range condition.
func (c Condition) IsRange() bool { return c.kind == kindRange }

// String renders the condition.
func (c Condition) String() string {
	switch c.kind {
	case kindIn:
		quoted := make([]string, len(c.values))
		for i, v := range c.values {
			quoted[i] = quote(v)
		}
		return c.key + " IN [" + strings.Join(quoted, ", ") + "]"
	case kindRange:
		return c.rangeExpr.render(c.key)
	case kindExists:
		return c.key + " EXISTS"
	default:
		return c.key + " = " + quote(c.values[0])
	}
}

// Range is a numeric range with gt/gte/lt/lte boundaries.
type Range struct {
	gt  *float64
	gte *float64
	lt  *float64
	lte *float64
}

// NewRangeFilter validates and creates a Range.
// At least one boundary required. gt/gte and lt/lte are mutually exclusive.
func NewRangeFilter(gt, gte, lt, lte *float64) (Range, error) {
	if gt == nil && gte == nil && lt == nil && lte == nil {
		return Range{}, fmt.Errorf("at least one range boundary is required")
	}
	if gt != nil && gte != nil {
		return Range{}, fmt.Errorf("cannot specify both gt and gte")
	}
	if lt != nil && lte != nil {
		return Range{}, fmt.Errorf("cannot specify both lt and lte")
	}
	return Range{gt: gt, gte: gte, lt: lt, lte: lte}, nil
}

// GT returns the lower exclusive bound.
func (r Range) GT() *float64 { return r.gt }

// GTE returns the lower inclusive bound.
func (r Range) GTE() *float64 { return r.gte }

// LT returns the upper exclusive bound.
func (r Range) LT() *float64 { return r.lt }

// LTE returns the upper inclusive bound.
func (r Range) LTE() *float64 { return r.lte }

func (r Range) render(key string) string {
	// Closed ranges use the engine's "a TO b" form.
	if r.gte != nil && r.lte != nil {
		return key + " " + num(*r.gte) + " TO " + num(*r.lte)
	}
	var parts []string
	if r.gt != nil {
		parts = append(parts, key+" > "+num(*r.gt))
	}
	if r.gte != nil {
		parts = append(parts, key+" >= "+num(*r.gte))
	}
	if r.lt != nil {
		parts = append(parts, key+" < "+num(*r.lt))
	}
	if r.lte != nil {
		parts = append(parts, key+" <= "+num(*r.lte))
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

func num(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

func quote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}
