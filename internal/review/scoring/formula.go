package scoring

import (
	"strconv"
	"strings"

	pkgerrors "gradeflow/pkg/errors"
)

// ParseFormula reads a gradebook cell such as "=2+5+10+1". An empty cell is
// an empty list.
func ParseFormula(formula string) ([]int, error) {
	fields := strings.FieldsFunc(formula, func(r rune) bool {
		return r == '=' || r == '+' || r == ' ' || r == '\t'
	})
	points := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, pkgerrors.FormulaInvalid, "invalid gradebook formula %q", formula)
		}
		points = append(points, n)
	}
	return points, nil
}

// RenderFormula is the inverse of ParseFormula.
func RenderFormula(points []int) string {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = strconv.Itoa(p)
	}
	return "=" + strings.Join(parts, "+")
}
