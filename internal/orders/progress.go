package orders

import "math/big"

// CalculateProgress returns the mean pick ratio of items as a 0..100
// percentage, rounded half-up. An order without items has progress 0.
// Ratios are summed exactly so x.5 boundaries round the same way every time.
func CalculateProgress(items []OrderItem) int {
	if len(items) == 0 {
		return 0
	}
	sum := new(big.Rat)
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		picked := min(max(it.PickedQuantity, 0), it.Quantity)
		sum.Add(sum, big.NewRat(int64(picked)*100, int64(it.Quantity)))
	}
	mean := sum.Quo(sum, big.NewRat(int64(len(items)), 1))
	// floor(mean + 1/2)
	mean.Add(mean, big.NewRat(1, 2))
	q := new(big.Int).Quo(mean.Num(), mean.Denom())
	return int(q.Int64())
}
