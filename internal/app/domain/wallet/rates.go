// Package wallet models the multi-currency wallet: the USD-pegged shf unit,
// fixed-rate token currencies, tier pricing, and the append-only sub-ledger
// balances reduce over.
package wallet

import "math"

// Token currencies with fixed conversion rates into shf.
const (
	CurrencySHF = "shf"
	TokenCorn   = "corn"
	TokenWheat  = "wheat"
	TokenHeart  = "heart"
	TokenRocket = "rocket"
)

// RateTable fixes the exchange rates used by pricing and conversion.
type RateTable struct {
	USDPerSHFc float64
	Tokens     map[string]int
}

// DefaultRates returns the platform defaults: $0.01 per SHFc and the fixed
// token rates.
func DefaultRates() RateTable {
	return RateTable{
		USDPerSHFc: 0.01,
		Tokens: map[string]int{
			TokenCorn:   5,
			TokenWheat:  5,
			TokenHeart:  50,
			TokenRocket: 200,
		},
	}
}

// ToSHF converts a USD amount into required shf units, rounding up so a
// price is never undercharged by floating-point truncation.
func (r RateTable) ToSHF(usd float64) int {
	per := r.USDPerSHFc
	if per <= 0 {
		per = 0.01
	}
	n := int(math.Ceil(usd / per))
	if n < 0 {
		return 0
	}
	return n
}

// TokenRate returns the shf value of one unit of the token, 0 if unknown.
func (r RateTable) TokenRate(token string) int {
	return r.Tokens[token]
}

var tierDiscounts = map[string]float64{
	"A+": 0.20,
	"A":  0.15,
	"B":  0.08,
	"C":  0.03,
	"D":  0.00,
}

// Quote is the input to MarketBreakdown.
type Quote struct {
	USD         float64
	SHFcBalance int
	TierBand    string
}

// Breakdown is the suggested split between tier discount and wallet spend.
type Breakdown struct {
	TierDiscountUSD float64 `json:"tierDiscountUSD"`
	SpendSHFc       int     `json:"spendSHFc"`
	NeededSHFc      int     `json:"neededSHFc"`
	Per             float64 `json:"per"`
}

// MarketBreakdown applies the tier discount to a list price, bounds wallet
// coverage by the balance, and reports the shortfall still required in shf.
func (r RateTable) MarketBreakdown(q Quote) Breakdown {
	per := r.USDPerSHFc
	if per <= 0 {
		per = 0.01
	}

	discount := tierDiscounts[q.TierBand]
	tierDiscountUSD := math.Round(q.USD*discount*100) / 100

	remainingUSD := q.USD - tierDiscountUSD
	if remainingUSD < 0 {
		remainingUSD = 0
	}

	maxCoverableUSD := float64(q.SHFcBalance) * per
	spendUSD := math.Min(remainingUSD, maxCoverableUSD)

	// the epsilon keeps exact multiples of the rate from flooring one short
	spend := int(math.Floor(spendUSD/per + 1e-9))
	if spend > q.SHFcBalance {
		spend = q.SHFcBalance
	}

	return Breakdown{
		TierDiscountUSD: tierDiscountUSD,
		SpendSHFc:       spend,
		NeededSHFc:      int(math.Ceil(remainingUSD / per)),
		Per:             per,
	}
}
