package api

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"equity-scanner/internal/models"
)

// Ticker symbols: letters, digits and the separators Yahoo uses for share
// classes, indices and foreign listings.
var symbolPattern = regexp.MustCompile(`^\^?[A-Z0-9][A-Z0-9.&=-]{0,19}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	err := v.RegisterValidation("symbol", func(fl validator.FieldLevel) bool {
		return ValidSymbol(fl.Field().String())
	})
	if err != nil {
		panic(fmt.Sprintf("register symbol validation: %v", err))
	}
	return v
}

// ValidSymbol reports whether s is a well-formed ticker after normalization.
func ValidSymbol(s string) bool {
	return symbolPattern.MatchString(models.NormalizeSymbol(s))
}

// ScanRequest is the body of POST /api/scan. An empty symbol list scans the
// configured universe.
type ScanRequest struct {
	Symbols   []string           `json:"symbols" validate:"omitempty,dive,symbol"`
	Targets   map[string]float64 `json:"targets" validate:"omitempty,dive,gte=0"`
	BuyPrices map[string]float64 `json:"buy_prices" validate:"omitempty,dive,gt=0"`
	Top       int                `json:"top" query:"top" validate:"gte=0"`
}

// AnalyzeRequest is bound from GET /api/analyze/:symbol.
type AnalyzeRequest struct {
	Symbol   string  `param:"symbol" validate:"required,symbol"`
	BuyPrice float64 `query:"buy_price" validate:"gte=0"`
	Target   float64 `query:"target" validate:"gte=0"`
	Summary  bool    `query:"summary"`
}

// RecommendRequest is bound from GET /api/recommend.
type RecommendRequest struct {
	Limit int `query:"limit" validate:"gte=0,lte=100"`
}

// WatchRequest is the body of POST /api/watchlist. A zero target is
// replaced by the default entry target.
type WatchRequest struct {
	Symbol string  `json:"symbol" validate:"required,symbol"`
	Target float64 `json:"target" validate:"gte=0"`
	Note   string  `json:"note" validate:"max=200"`
}

// SymbolParam is bound from routes ending in /:symbol.
type SymbolParam struct {
	Symbol string `param:"symbol" validate:"required,symbol"`
}

// AlertsRequest is bound from GET /api/alerts.
type AlertsRequest struct {
	Symbol string `query:"symbol" validate:"omitempty,symbol"`
	Limit  int    `query:"limit" default:"50" validate:"gte=1,lte=500"`
}

// RunsRequest is bound from GET /api/runs.
type RunsRequest struct {
	Limit int `query:"limit" default:"20" validate:"gte=1,lte=200"`
}

// bindRequest binds, fills defaults and validates req. It returns the field
// errors to report, or nil.
func bindRequest(c echo.Context, req interface{}) []FieldError {
	if err := c.Bind(req); err != nil {
		return toFieldErrors(err)
	}
	if err := defaults.Set(req); err != nil {
		return toFieldErrors(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return toFieldErrors(err)
	}
	return nil
}

func toFieldErrors(err error) []FieldError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]FieldError, 0, len(verrs))
		for _, e := range verrs {
			out = append(out, FieldError{
				Code:    "ERR_" + strings.ToUpper(e.Tag()),
				Field:   e.Field(),
				Message: fieldMessage(e),
			})
		}
		return out
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return []FieldError{{Code: "ERR_BIND", Message: fmt.Sprintf("%v", he.Message)}}
	}
	return []FieldError{{Code: "ERR_UNKNOWN", Message: err.Error()}}
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "symbol":
		return fmt.Sprintf("%s is not a valid ticker symbol", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}
