package settlement

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/playoffchallenge/backend/internal/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Compute ranks the scores and splits poolCents over the payout structure.
//
// Rankings are ordered by score descending, then user id ascending. Equal
// scores share a rank and the next rank skips ahead (1, 1, 3). Tied entries
// split the percentages of the places they occupy evenly, rounded down to the
// cent. Entries whose share rounds to zero are not paid.
func Compute(scores []models.ContestScore, structure []models.PayoutPlace, poolCents int64) (models.SettlementResults, error) {
	if poolCents < 0 {
		return models.SettlementResults{}, fmt.Errorf("prize pool must not be negative")
	}
	pct, err := placePercentages(structure)
	if err != nil {
		return models.SettlementResults{}, err
	}

	sorted := make([]models.ContestScore, len(scores))
	copy(sorted, scores)
	sort.SliceStable(sorted, func(i, j int) bool {
		if c := sorted[i].Score.Cmp(sorted[j].Score); c != 0 {
			return c > 0
		}
		return bytes.Compare(sorted[i].UserID[:], sorted[j].UserID[:]) < 0
	})

	results := models.SettlementResults{
		Rankings: make([]models.Ranking, 0, len(sorted)),
		Payouts:  []models.SettlementPayout{},
	}
	for i, s := range sorted {
		rank := i + 1
		if i > 0 && s.Score.Equal(sorted[i-1].Score) {
			rank = results.Rankings[i-1].Rank
		}
		results.Rankings = append(results.Rankings, models.Ranking{UserID: s.UserID, Score: s.Score, Rank: rank})
	}

	pool := decimal.NewFromInt(poolCents)
	for start := 0; start < len(results.Rankings); {
		end := start + 1
		for end < len(results.Rankings) && results.Rankings[end].Rank == results.Rankings[start].Rank {
			end++
		}
		tied := end - start
		rank := results.Rankings[start].Rank

		share := decimal.Zero
		for place := rank; place < rank+tied; place++ {
			share = share.Add(pct[place])
		}
		each := pool.Mul(share).Div(hundred.Mul(decimal.NewFromInt(int64(tied)))).Floor().IntPart()
		if each > 0 {
			for _, r := range results.Rankings[start:end] {
				results.Payouts = append(results.Payouts, models.SettlementPayout{UserID: r.UserID, AmountCents: each})
			}
		}
		start = end
	}

	if err := results.Validate(); err != nil {
		return models.SettlementResults{}, err
	}
	return results, nil
}

func placePercentages(structure []models.PayoutPlace) (map[int]decimal.Decimal, error) {
	pct := make(map[int]decimal.Decimal, len(structure))
	total := decimal.Zero
	for i, p := range structure {
		if p.Place < 1 {
			return nil, fmt.Errorf("payout_structure[%d]: place must be >= 1", i)
		}
		if _, dup := pct[p.Place]; dup {
			return nil, fmt.Errorf("payout_structure[%d]: duplicate place %d", i, p.Place)
		}
		d, err := decimal.NewFromString(p.Percentage)
		if err != nil {
			return nil, fmt.Errorf("payout_structure[%d]: percentage %q: %w", i, p.Percentage, err)
		}
		if d.IsNegative() {
			return nil, fmt.Errorf("payout_structure[%d]: percentage must not be negative", i)
		}
		pct[p.Place] = d
		total = total.Add(d)
	}
	if total.GreaterThan(hundred) {
		return nil, fmt.Errorf("payout_structure percentages add up to %s, more than 100", total)
	}
	return pct, nil
}
