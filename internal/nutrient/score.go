// Package nutrient computes the weighted fulfilment score of an allocation
// family from its nine needed/allocated nutrient pairs.
package nutrient

import (
	"github.com/shopspring/decimal"

	"github.com/dukerupert/foodalloc/internal/model"
)

// Weight is the relative importance of one nutrient in the aggregate score.
type Weight struct {
	Nutrient model.Nutrient
	Weight   float64
}

// Weights is ordered like model.AllNutrients.
var Weights = []Weight{
	{model.Calorie, 5},
	{model.Carbohydrate, 3},
	{model.Protein, 4},
	{model.Fat, 3},
	{model.Fiber, 2},
	{model.Sugar, 1},
	{model.SaturatedFat, 1},
	{model.Cholesterol, 1},
	{model.Sodium, 1},
}

// TotalWeight is the sum of all nutrient weights.
var TotalWeight = func() float64 {
	var sum float64
	for _, w := range Weights {
		sum += w.Weight
	}
	return sum
}()

// Share is the maximum contribution of n to the aggregate score, in percent.
func Share(n model.Nutrient) float64 {
	for _, w := range Weights {
		if w.Nutrient == n {
			return w.Weight * 100 / TotalWeight
		}
	}
	return 0
}

// Ratio returns allocated/needed, or 0 when nothing is needed.
func Ratio(needed, allocated decimal.Decimal) float64 {
	if needed.Sign() <= 0 {
		return 0
	}
	return allocated.Div(needed).InexactFloat64()
}

// Score returns the weighted fulfilment percentage. It is 0 whenever no
// calories are needed. A nutrient whose own need is 0 contributes 0. The
// result may exceed 100 when a nutrient is over-allocated.
func Score(f model.NutrientFigures) float64 {
	if f.CalorieNeeded.Sign() <= 0 {
		return 0
	}
	var total float64
	for _, w := range Weights {
		needed, allocated := f.Pair(w.Nutrient)
		total += Ratio(needed, allocated) * (w.Weight * 100 / TotalWeight)
	}
	return total
}
