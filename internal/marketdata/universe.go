package marketdata

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	apperrors "equity-scanner/internal/errors"
	"equity-scanner/internal/models"
)

// Universe is a named list of symbols to scan.
type Universe struct {
	Name    string   `yaml:"name" json:"name"`
	Symbols []string `yaml:"symbols" json:"symbols"`
}

// DefaultUniverse returns the built-in large-cap technology universe.
func DefaultUniverse() Universe {
	return Universe{
		Name: "nasdaq-core",
		Symbols: []string{
			"AAPL", "MSFT", "NVDA", "AMZN", "GOOGL", "META", "AVGO", "TSLA", "COST", "NFLX",
			"AMD", "ADBE", "PEP", "CSCO", "TMUS", "INTC", "QCOM", "TXN", "AMGN", "INTU",
			"AMAT", "ISRG", "HON", "BKNG", "SBUX", "VRTX", "GILD", "ADI", "MDLZ", "REGN",
			"LRCX", "ADP", "PANW", "MU", "KLAC", "SNPS", "CDNS", "MELI", "PYPL", "ASML",
			"MAR", "ORLY", "CTAS", "MRVL", "CRWD", "ABNB", "FTNT", "NXPI", "WDAY", "DXCM",
		},
	}
}

// LoadUniverse reads a YAML universe file of the form
//
//	name: my-list
//	symbols: [AAPL, msft, NVDA]
//
// Symbols are normalized and deduplicated.
func LoadUniverse(path string) (Universe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Universe{}, fmt.Errorf("read universe: %w", err)
	}

	var u Universe
	if err := yaml.Unmarshal(data, &u); err != nil {
		return Universe{}, fmt.Errorf("parse universe %s: %w", path, err)
	}
	u.Symbols = models.DedupeSymbols(u.Symbols)
	if len(u.Symbols) == 0 {
		return Universe{}, apperrors.NewValidationError("symbols", path, "universe has no symbols")
	}
	if u.Name == "" {
		u.Name = path
	}
	return u, nil
}

// SaveUniverse writes a universe file.
func SaveUniverse(path string, u Universe) error {
	data, err := yaml.Marshal(u)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
