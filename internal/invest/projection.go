// Package invest projects the growth of a monthly savings plan and keeps
// the plans the user saved as profiles.
package invest

import (
	"fmt"

	"github.com/shopspring/decimal"

	"konto/internal/core"
)

// MaxYears bounds a projection.
const MaxYears = 100

// Plan describes a savings plan. AnnualRate is the expected yearly return
// in percent, compounded monthly.
type Plan struct {
	Initial    decimal.Decimal `json:"initial"`
	Monthly    decimal.Decimal `json:"monthly"`
	Years      int             `json:"years"`
	AnnualRate decimal.Decimal `json:"annualRate"`
}

// DefaultPlan is what an empty calculator starts from.
func DefaultPlan() Plan {
	return Plan{
		Initial:    decimal.NewFromInt(1000),
		Monthly:    decimal.NewFromInt(150),
		Years:      10,
		AnnualRate: decimal.RequireFromString("7.09"),
	}
}

var hundred = decimal.NewFromInt(100)

// Validate rejects negative contributions, a rate at or below -100% and
// durations outside 0..MaxYears. Zero years is projected as one.
func (p Plan) Validate() error {
	switch {
	case p.Initial.IsNegative():
		return fmt.Errorf("%w: negative initial amount", core.ErrInvalidPlan)
	case p.Monthly.IsNegative():
		return fmt.Errorf("%w: negative monthly amount", core.ErrInvalidPlan)
	case p.Years < 0 || p.Years > MaxYears:
		return fmt.Errorf("%w: years must be between 1 and %d", core.ErrInvalidPlan, MaxYears)
	case p.AnnualRate.LessThanOrEqual(hundred.Neg()):
		return fmt.Errorf("%w: rate must be above -100%%", core.ErrInvalidPlan)
	}
	return nil
}

// Point is the state of the plan at the end of a year. Year 0 is the start.
type Point struct {
	Year     int             `json:"year"`
	Value    decimal.Decimal `json:"value"`
	Invested decimal.Decimal `json:"invested"`
}

// Projection is the yearly series plus the final figures.
type Projection struct {
	Plan     Plan            `json:"plan"`
	Points   []Point         `json:"points"`
	Value    decimal.Decimal `json:"value"`
	Invested decimal.Decimal `json:"invested"`
	Gain     decimal.Decimal `json:"gain"`
}

// Project runs the plan month by month: each month the contribution is
// added and the whole value grows by AnnualRate/12. Points are labelled
// with calendar years counted from startYear.
func Project(p Plan, startYear int) (Projection, error) {
	if err := p.Validate(); err != nil {
		return Projection{}, err
	}
	if p.Years == 0 {
		p.Years = 1
	}

	growth := decimal.NewFromInt(1).Add(p.AnnualRate.Div(hundred).Div(decimal.NewFromInt(12)))
	value, invested := p.Initial, p.Initial

	points := make([]Point, 0, p.Years+1)
	points = append(points, Point{Year: startYear, Value: value.Round(2), Invested: invested})
	for month := 1; month <= p.Years*12; month++ {
		// Rounded to keep the mantissa bounded over long plans.
		value = value.Add(p.Monthly).Mul(growth).Round(10)
		invested = invested.Add(p.Monthly)
		if month%12 == 0 {
			points = append(points, Point{Year: startYear + month/12, Value: value.Round(2), Invested: invested})
		}
	}

	final := value.Round(2)
	return Projection{
		Plan:     p,
		Points:   points,
		Value:    final,
		Invested: invested,
		Gain:     final.Sub(invested),
	}, nil
}
