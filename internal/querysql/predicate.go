package querysql

import (
	"fmt"
	"strings"
)

// Predicate is a filter condition in a series query.
//
// This is a sealed interface; only types in this package implement it.
type Predicate interface {
	predicateNode()
}

// Equals matches column = value.
type Equals struct {
	Field string
	Value any
}

// In matches column IN (values...). An empty list matches nothing.
type In struct {
	Field  string
	Values []any
}

// Range matches From <= column < To. A nil bound is open.
type Range struct {
	Field string
	From  *int64
	To    *int64
}

// And requires all predicates to hold. An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (Equals) predicateNode() {}
func (In) predicateNode()     {}
func (Range) predicateNode()  {}
func (And) predicateNode()    {}

// compilePredicate returns a WHERE fragment and its parameters.
func compilePredicate(p Predicate) (string, []any, error) {
	if p == nil {
		return "1 = 1", nil, nil
	}

	switch pred := p.(type) {
	case Equals:
		return fmt.Sprintf("%s = ?", pred.Field), []any{pred.Value}, nil
	case In:
		if len(pred.Values) == 0 {
			return "1 = 0", nil, nil
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(pred.Values)), ", ")
		return fmt.Sprintf("%s IN (%s)", pred.Field, marks), append([]any(nil), pred.Values...), nil
	case Range:
		var parts []string
		var params []any
		if pred.From != nil {
			parts = append(parts, fmt.Sprintf("%s >= ?", pred.Field))
			params = append(params, *pred.From)
		}
		if pred.To != nil {
			parts = append(parts, fmt.Sprintf("%s < ?", pred.Field))
			params = append(params, *pred.To)
		}
		if len(parts) == 0 {
			return "1 = 1", nil, nil
		}
		return strings.Join(parts, " AND "), params, nil
	case And:
		if len(pred.Predicates) == 0 {
			return "1 = 1", nil, nil
		}
		var sqlParts []string
		var allParams []any
		for _, sub := range pred.Predicates {
			sql, params, err := compilePredicate(sub)
			if err != nil {
				return "", nil, err
			}
			sqlParts = append(sqlParts, sql)
			allParams = append(allParams, params...)
		}
		return strings.Join(sqlParts, " AND "), allParams, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// CompileWhere compiles a standalone predicate for callers that build
// their own SELECT around it.
func CompileWhere(p Predicate) (string, []any, error) {
	return compilePredicate(p)
}
