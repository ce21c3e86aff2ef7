package meilifed

import (
	"github.com/kailas-cloud/meilifed/internal/domain/search/filter"
	"github.com/kailas-cloud/meilifed/internal/domain/search/request"
)

type (
	// Condition is a single structured filter clause.
	Condition = filter.Condition
	// Expression combines conditions with must/should/must_not semantics.
	Expression = filter.Expression
)

// Eq matches documents whose attribute equals value.
func Eq(attr, value string) (Condition, error) { return filter.NewMatch(attr, value) }

// In matches documents whose attribute is one of values.
func In(attr string, values ...string) (Condition, error) { return filter.NewIn(attr, values...) }

// Exists matches documents carrying the attribute.
func Exists(attr string) (Condition, error) { return filter.NewExists(attr) }

// Between matches attr within the inclusive range [lo, hi].
func Between(attr string, lo, hi float64) (Condition, error) {
	r, err := filter.NewRangeFilter(nil, &lo, nil, &hi)
	if err != nil {
		return Condition{}, err
	}
	return filter.NewRange(attr, r)
}

// Where builds an expression. Must clauses are ANDed, should clauses ORed
// and must_not clauses negated.
func Where(must, should, mustNot []Condition) (Expression, error) {
	return filter.NewExpression(must, should, mustNot)
}

// FilterBy sets the query filter from a structured expression.
func FilterBy(e Expression) SearchOption { return request.WithExpression(e) }
