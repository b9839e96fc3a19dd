package vending

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Change is the result of settling a balance into coins.
type Change struct {
	Coins []Coin
	// Remainder is the part of the balance below the smallest denomination. It is
	// not paid out.
	Remainder decimal.Decimal
}

// Total returns the summed value of the coins.
func (change Change) Total() decimal.Decimal {
	total := decimal.Zero
	for _, coin := range change.Coins {
		total = total.Add(coin.Value())
	}
	return total
}

// FaceValues returns the coins as plain integers, largest first.
func (change Change) FaceValues() []int {
	values := make([]int, 0, len(change.Coins))
	for _, coin := range change.Coins {
		values = append(values, coin.Int())
	}
	return values
}

// ChangeCalculator converts a balance into coins with greedy selection.
// Greedy selection is exact only for canonical coin systems, so construction
// rejects any other denomination set.
type ChangeCalculator struct {
	denominations []Coin
	minimum       decimal.Decimal
}

var defaultChangeCalculator = mustChangeCalculator(acceptedCoins...)

// NewChangeCalculator builds a calculator over the given denominations, largest
// first. With no arguments it uses the fixed set {100, 50, 20, 10, 5}.
func NewChangeCalculator(denominations ...Coin) (*ChangeCalculator, error) {
	if len(denominations) == 0 {
		denominations = acceptedCoins
	}
	if !IsCanonical(denominations) {
		return nil, fmt.Errorf("%w: %w: %v", ErrInvalidServiceConfig, ErrInvalidDenominationSet, denominations)
	}
	ordered := make([]Coin, len(denominations))
	copy(ordered, denominations)
	return &ChangeCalculator{
		denominations: ordered,
		minimum:       ordered[len(ordered)-1].Value(),
	}, nil
}

func mustChangeCalculator(denominations ...Coin) *ChangeCalculator {
	calculator, err := NewChangeCalculator(denominations...)
	if err != nil {
		panic(err)
	}
	return calculator
}

// ComputeChange settles balance into coins using the fixed denomination set.
func ComputeChange(balance decimal.Decimal) []Coin {
	return defaultChangeCalculator.ComputeChange(balance).Coins
}

// ComputeChange walks the denominations from largest to smallest, emitting a coin
// while the remaining balance in minor units still covers it. It stops as soon as
// the remaining balance drops below the smallest denomination.
func (calculator *ChangeCalculator) ComputeChange(balance decimal.Decimal) Change {
	remaining := balance
	coins := make([]Coin, 0)
	for _, denomination := range calculator.denominations {
		if remaining.LessThan(calculator.minimum) {
			break
		}
		faceValue := decimal.NewFromInt(int64(denomination))
		coinValue := denomination.Value().Round(minorUnitExponent)
		for remaining.Shift(minorUnitExponent).GreaterThanOrEqual(faceValue) {
			remaining = remaining.Sub(coinValue)
			coins = append(coins, denomination)
		}
	}
	return Change{Coins: coins, Remainder: remaining}
}

// Denominations returns the configured set, largest first.
func (calculator *ChangeCalculator) Denominations() []Coin {
	denominations := make([]Coin, len(calculator.denominations))
	copy(denominations, calculator.denominations)
	return denominations
}

// IsCanonical reports whether greedy selection over denominations (largest
// first) yields an exact, minimal coin count for every representable amount.
// A counterexample, if one exists, lies below the sum of the two largest coins,
// so only that range is checked.
func IsCanonical(denominations []Coin) bool {
	if len(denominations) == 0 {
		return false
	}
	for index, coin := range denominations {
		if coin <= 0 {
			return false
		}
		if index > 0 && coin >= denominations[index-1] {
			return false
		}
	}
	limit := int(denominations[0])
	if len(denominations) > 1 {
		limit += int(denominations[1])
	}
	const unreachable = -1
	optimal := make([]int, limit+1)
	for amount := 1; amount <= limit; amount++ {
		optimal[amount] = unreachable
		for _, coin := range denominations {
			previous := amount - int(coin)
			if previous < 0 || optimal[previous] == unreachable {
				continue
			}
			if candidate := optimal[previous] + 1; optimal[amount] == unreachable || candidate < optimal[amount] {
				optimal[amount] = candidate
			}
		}
	}
	for amount := 1; amount <= limit; amount++ {
		if optimal[amount] == unreachable {
			continue
		}
		remaining, count := amount, 0
		for _, coin := range denominations {
			count += remaining / int(coin)
			remaining %= int(coin)
		}
		if remaining != 0 || count != optimal[amount] {
			return false
		}
	}
	return true
}
