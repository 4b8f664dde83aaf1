package nutrient

import (
	"github.com/shopspring/decimal"

	"github.com/dukerupert/foodalloc/internal/model"
)

// Tier is the colour bucket of a fulfilment percentage.
type Tier string

const (
	TierRed   Tier = "red"
	TierAmber Tier = "amber"
	TierGreen Tier = "green"
)

const (
	amberFrom = 30.0
	greenFrom = 60.0
)

func TierOf(percent float64) Tier {
	switch {
	case percent >= greenFrom:
		return TierGreen
	case percent >= amberFrom:
		return TierAmber
	default:
		return TierRed
	}
}

// Row is one line of the per-nutrient breakdown.
type Row struct {
	Nutrient  model.Nutrient
	Needed    decimal.Decimal
	Allocated decimal.Decimal
	Percent   float64
	Tier      Tier
}

// Breakdown returns one row per nutrient in display order.
func Breakdown(f model.NutrientFigures) []Row {
	rows := make([]Row, 0, len(model.AllNutrients))
	for _, n := range model.AllNutrients {
		needed, allocated := f.Pair(n)
		pct := Ratio(needed, allocated) * 100
		rows = append(rows, Row{
			Nutrient:  n,
			Needed:    needed,
			Allocated: allocated,
			Percent:   pct,
			Tier:      TierOf(pct),
		})
	}
	return rows
}

// Summary is the aggregate score together with its tier.
type Summary struct {
	Score float64
	Tier  Tier
}

func Summarize(f model.NutrientFigures) Summary {
	s := Score(f)
	return Summary{Score: s, Tier: TierOf(s)}
}
