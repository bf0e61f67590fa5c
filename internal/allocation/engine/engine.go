// Package engine holds the pure expense-splitting arithmetic. Inputs
// and outputs are integer cents; intermediate math is exact rationals
// so the parts always sum to the total.
package engine

import (
	"errors"
	"math/big"
	"sort"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidWeight        = errors.New("invalid_weight")
	ErrNoAllocationTargets  = errors.New("no_allocation_targets")
	ErrRoundingInvariant    = errors.New("rounding_invariant_violation")
	ErrMeteredTotalMismatch = errors.New("metered_total_mismatch")
)

// Weight is one unit's share of the denominator.
type Weight struct {
	UnitID snowflake.ID
	Value  int64
}

// Part is one unit's rounded slice of the total.
type Part struct {
	UnitID      snowflake.ID
	AmountCents int64
}

// Split divides totalCents across the weights with largest-remainder
// rounding. Residual cents go to the largest fractional remainders,
// ties broken by ascending unit id. Zero weights yield zero parts;
// any negative weight is rejected.
func Split(totalCents int64, weights []Weight) ([]Part, error) {
	denominator := int64(0)
	for _, w := range weights {
		if w.Value < 0 {
			return nil, ErrInvalidWeight
		}
		denominator += w.Value
	}
	if denominator == 0 {
		return nil, ErrNoAllocationTargets
	}

	sign := int64(1)
	magnitude := totalCents
	if magnitude < 0 {
		sign = -1
		magnitude = -magnitude
	}

	type slice struct {
		idx       int
		remainder *big.Rat
	}

	parts := make([]Part, len(weights))
	slices := make([]slice, 0, len(weights))
	den := big.NewInt(denominator)
	assigned := int64(0)

	for i, w := range weights {
		parts[i].UnitID = w.UnitID
		if w.Value == 0 {
			continue
		}
		num := new(big.Int).Mul(big.NewInt(magnitude), big.NewInt(w.Value))
		exact := new(big.Rat).SetFrac(num, den)

		floor := new(big.Int).Quo(exact.Num(), exact.Denom())
		base := floor.Int64()
		remainder := new(big.Rat).Sub(exact, new(big.Rat).SetInt64(base))

		parts[i].AmountCents = base
		assigned += base
		slices = append(slices, slice{idx: i, remainder: remainder})
	}

	residual := magnitude - assigned
	if residual < 0 || residual > int64(len(slices)) {
		return nil, ErrRoundingInvariant
	}

	sort.SliceStable(slices, func(a, b int) bool {
		cmp := slices[a].remainder.Cmp(slices[b].remainder)
		if cmp != 0 {
			return cmp > 0
		}
		return weights[slices[a].idx].UnitID < weights[slices[b].idx].UnitID
	})
	for i := int64(0); i < residual; i++ {
		parts[slices[i].idx].AmountCents++
	}

	sum := int64(0)
	for i := range parts {
		parts[i].AmountCents *= sign
		sum += parts[i].AmountCents
	}
	if sum != totalCents {
		return nil, ErrRoundingInvariant
	}
	return parts, nil
}

// Consumption is one unit's metered usage in milli-units.
type Consumption struct {
	UnitID     snowflake.ID
	ValueMilli int64
}

// MeteredTotalCents prices consumption at tariffCentsPerUnit and
// returns the total in cents, rounded half-up once at the end.
func MeteredTotalCents(consumption []Consumption, tariffCentsPerUnit int64) (int64, error) {
	total := new(big.Rat)
	thousand := big.NewInt(1000)
	for _, c := range consumption {
		if c.ValueMilli < 0 {
			return 0, ErrInvalidWeight
		}
		num := new(big.Int).Mul(big.NewInt(c.ValueMilli), big.NewInt(tariffCentsPerUnit))
		total.Add(total, new(big.Rat).SetFrac(num, thousand))
	}

	// Round half-up to whole cents.
	num := new(big.Int).Mul(total.Num(), big.NewInt(2))
	den := new(big.Int).Mul(total.Denom(), big.NewInt(2))
	num.Add(num, total.Denom())
	return new(big.Int).Quo(num, den).Int64(), nil
}

// SplitMetered assigns the expense amount across consuming units. When
// the priced consumption disagrees with amountCents, redistribute
// spreads the difference proportionally; otherwise the mismatch is an
// error.
func SplitMetered(amountCents int64, consumption []Consumption, tariffCentsPerUnit int64, redistribute bool) ([]Part, error) {
	computed, err := MeteredTotalCents(consumption, tariffCentsPerUnit)
	if err != nil {
		return nil, err
	}
	if computed != amountCents && !redistribute {
		return nil, ErrMeteredTotalMismatch
	}

	weights := make([]Weight, len(consumption))
	for i, c := range consumption {
		weights[i] = Weight{UnitID: c.UnitID, Value: c.ValueMilli}
	}
	return Split(amountCents, weights)
}
