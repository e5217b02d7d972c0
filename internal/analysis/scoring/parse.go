package scoring

import (
	"math"
	"strconv"
	"strings"

	"equity-scanner/internal/models"
)

// Fundamentals holds parsed fundamental ratios. Percent-like fields are in
// percent units (18.5 means 18.5%); DebtToEquity is a plain ratio.
// Unavailable fields are zero.
type Fundamentals struct {
	ROE             float64 `json:"roe"`
	ROA             float64 `json:"roa"`
	ProfitMargin    float64 `json:"profit_margin"`
	OperatingMargin float64 `json:"operating_margin"`
	PE              float64 `json:"pe"`
	ForwardPE       float64 `json:"forward_pe"`
	PEG             float64 `json:"peg"`
	PB              float64 `json:"pb"`
	DebtToEquity    float64 `json:"debt_to_equity"`
	CurrentRatio    float64 `json:"current_ratio"`
	FreeCashFlow    float64 `json:"free_cash_flow"`
	RevenueGrowth   float64 `json:"revenue_growth"`
	EarningsGrowth  float64 `json:"earnings_growth"`
	DividendYield   float64 `json:"dividend_yield"`
	PayoutRatio     float64 `json:"payout_ratio"`
}

// ParseFundamentals converts a provider payload into Fundamentals.
// Unparseable values such as "N/A" become 0 rather than failing.
func ParseFundamentals(raw models.RawFundamentals) Fundamentals {
	return Fundamentals{
		ROE:             ParsePercent(raw.Get(models.FieldROE)),
		ROA:             ParsePercent(raw.Get(models.FieldROA)),
		ProfitMargin:    ParsePercent(raw.Get(models.FieldProfitMargin)),
		OperatingMargin: ParsePercent(raw.Get(models.FieldOperatingMargin)),
		PE:              ParseNumber(raw.Get(models.FieldPE)),
		ForwardPE:       ParseNumber(raw.Get(models.FieldForwardPE)),
		PEG:             ParseNumber(raw.Get(models.FieldPEG)),
		PB:              ParseNumber(raw.Get(models.FieldPB)),
		DebtToEquity:    ParseNumber(raw.Get(models.FieldDebtToEquity)),
		CurrentRatio:    ParseNumber(raw.Get(models.FieldCurrentRatio)),
		FreeCashFlow:    ParseNumber(raw.Get(models.FieldFreeCashFlow)),
		RevenueGrowth:   ParsePercent(raw.Get(models.FieldRevenueGrowth)),
		EarningsGrowth:  ParsePercent(raw.Get(models.FieldEarningsGrowth)),
		DividendYield:   ParsePercent(raw.Get(models.FieldDividendYield)),
		PayoutRatio:     ParsePercent(raw.Get(models.FieldPayoutRatio)),
	}
}

// ParseNumber parses a provider number such as "1,234.5". "N/A", "-" and
// anything unparseable yield 0.
func ParseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == models.NotAvailable || s == "-" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// ParsePercent parses a percentage such as "18.5%" or a fraction such as "0.185".
// A value without a percent sign and magnitude below 1 is read as a fraction.
func ParsePercent(s string) float64 {
	s = strings.TrimSpace(s)
	hasSign := strings.HasSuffix(s, "%")
	v := ParseNumber(strings.TrimSuffix(s, "%"))
	if !hasSign && math.Abs(v) < 1 {
		return v * 100
	}
	return v
}
