package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/gocarina/gocsv"

	"equity-scanner/internal/scan"
)

// scanRow is one ranked result in a CSV export.
type scanRow struct {
	Rank           int     `csv:"rank"`
	Symbol         string  `csv:"symbol"`
	Price          float64 `csv:"price"`
	Change1d       float64 `csv:"change_1d"`
	Change5d       float64 `csv:"change_5d"`
	RSI            float64 `csv:"rsi"`
	VolumeRatio    float64 `csv:"volume_ratio"`
	MA50Gap        float64 `csv:"ma50_gap"`
	FactorScore    float64 `csv:"factor_score"`
	FinancialScore float64 `csv:"financial_score"`
	RiskScore      float64 `csv:"risk_score"`
	TotalScore     float64 `csv:"total_score"`
	Grade          string  `csv:"grade"`
	Entry          string  `csv:"entry"`
	Strategies     string  `csv:"strategies"`
}

func scanRows(results []scan.SignalResult) []*scanRow {
	rows := make([]*scanRow, 0, len(results))
	for i, r := range results {
		row := &scanRow{
			Rank:           i + 1,
			Symbol:         r.Symbol,
			FactorScore:    r.Score.FactorScore,
			FinancialScore: r.Score.FinancialScore,
			RiskScore:      r.Score.RiskScore,
			TotalScore:     r.Score.TotalScore,
			Grade:          string(r.Score.Grade),
			Entry:          EntryLabel(r.Entry),
			Strategies:     StrategyNames(r.Strategies),
		}
		if b := r.Bundle; b != nil {
			row.Price = b.Price
			row.Change1d = b.Change1d
			row.Change5d = b.Change5d
			row.RSI = b.RSI
			row.VolumeRatio = b.VolumeRatio
			row.MA50Gap = b.MA50Gap
		}
		rows = append(rows, row)
	}
	return rows
}

// writeCSV writes ranked results to path, or to w when path is "-".
func writeCSV(path string, w io.Writer, results []scan.SignalResult) error {
	if path == "-" {
		return gocsv.Marshal(scanRows(results), w)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := gocsv.Marshal(scanRows(results), f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
