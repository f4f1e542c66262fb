package utils

import (
	"math"

	"github.com/rso-iota/rso-bots/bot/domain"
)

// FiniteVec は NaN や Inf を含まないベクトルかどうかを返します。
func FiniteVec(v domain.Vector) bool {
	return isFinite(v.X) && isFinite(v.Y)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
