package features

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/mbd888/txsentinel/internal/transactions"
)

// ErrNoHistory is returned by Extract when the sender has no transactions.
var ErrNoHistory = errors.New("sender has no transaction history")

const (
	topN = 5
	// minHistory is the history length below which burstiness and ATV
	// features fall back to their defaults.
	minHistory    = 5
	secondsPerDay = 24 * 60 * 60
)

// Extract computes the feature vector over a sender's full history. The
// input is copied and sorted chronologically, so storage order does not
// matter and the result is deterministic.
func Extract(history []*transactions.Transaction) (Vector, error) {
	n := len(history)
	if n == 0 {
		return Vector{}, ErrNoHistory
	}

	txs := make([]*transactions.Transaction, n)
	copy(txs, history)
	sort.SliceStable(txs, func(i, j int) bool { return transactions.Less(txs[i], txs[j]) })

	amounts := make([]float64, n)
	days := make([]int64, n)
	beneficiaries := make(map[string]struct{}, n)
	dailyCounts := make(map[int64]int)
	paid := 0
	for i, tx := range txs {
		amounts[i] = tx.Amount.InexactFloat64()
		days[i] = utcDay(tx.SendingDate)
		beneficiaries[tx.BeneficiaryID] = struct{}{}
		dailyCounts[days[i]]++
		if tx.Status == transactions.StatusPaid {
			paid++
		}
	}

	v := Vector{
		TotalTrx:           float64(n),
		TotalBeneficiaries: float64(len(beneficiaries)),
		TotalPaidOutTrx:    float64(paid),
		LengthOfSeq:        float64(n),
		PaidPercentage:     100 * float64(paid) / float64(n),
	}

	// Burstiness: the busiest calendar days.
	if n >= minHistory {
		counts := make([]float64, 0, len(dailyCounts))
		for _, c := range dailyCounts {
			counts = append(counts, float64(c))
		}
		top := largest(counts, topN)
		v.AvgTop05DailyTrx = mean(top)
		v.StdTop05DailyTrx = populationStd(top)
		v.SdTop05DailyTrx = sampleStd(top)
	} else {
		v.AvgTop05DailyTrx = 1
	}

	topVolumes := largest(amounts, topN)
	v.AvgTopVolumes = mean(topVolumes)
	v.StdTopVolumes = populationStd(topVolumes)
	v.SdTopVolumes = sampleStd(topVolumes)

	if n > 1 {
		var maxGap, sumGap float64
		for i := 1; i < n; i++ {
			gap := float64(days[i] - days[i-1])
			sumGap += gap
			if gap > maxGap {
				maxGap = gap
			}
		}
		v.DateDifferencesMax = maxGap
		v.DateDifferencesAvg = sumGap / float64(n-1)
	}

	if n >= minHistory {
		v.AvgTop05ATV = mean(largest(amounts, topN))
		v.AvgBottomATV = mean(smallest(amounts, topN))
		v.SdATV = sampleStd(amounts)
	}

	if n > 2 {
		diffs := make([]float64, n-1)
		for i := 1; i < n; i++ {
			diffs[i-1] = math.Abs(amounts[i] - amounts[i-1])
		}
		v.SdTrxDiff = sampleStd(diffs)
	}

	if n > 1 {
		v.SdTrxVol = sampleStd(amounts)
	}

	return v, nil
}

// utcDay is the number of whole calendar days since the epoch, in UTC.
func utcDay(t time.Time) int64 {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).Unix() / secondsPerDay
}

// largest returns up to k of the largest values, descending.
func largest(values []float64, k int) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	if len(sorted) > k {
		sorted = sorted[:k]
	}
	return sorted
}

// smallest returns up to k of the smallest values, ascending.
func smallest(values []float64, k int) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) > k {
		sorted = sorted[:k]
	}
	return sorted
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func sumSquares(values []float64) float64 {
	m := mean(values)
	var ss float64
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return ss
}

// populationStd divides by n.
func populationStd(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return math.Sqrt(sumSquares(values) / float64(len(values)))
}

// sampleStd divides by n-1 and is 0 for fewer than two values.
func sampleStd(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return math.Sqrt(sumSquares(values) / float64(len(values)-1))
}
