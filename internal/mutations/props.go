package mutations

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pension-calculation-engine/internal/model"
)

// Property extraction never fails. A missing key or a value of the wrong shape
// yields the zero value of the requested type.

func propString(props model.Properties, key string) string {
	s, _ := lookupString(props, key)
	return s
}

// lookupString reports false for missing keys, null and empty strings, so an
// optional filter sent as "" counts as not given.
func lookupString(props model.Properties, key string) (string, bool) {
	v, ok := props[key]
	if !ok || v == nil {
		return "", false
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case fmt.Stringer:
		s = t.String()
	default:
		s = fmt.Sprint(t)
	}
	return s, s != ""
}

func propDate(props model.Properties, key string) model.Date {
	d, _ := lookupDate(props, key)
	return d
}

func lookupDate(props model.Properties, key string) (model.Date, bool) {
	switch t := props[key].(type) {
	case model.Date:
		return t, true
	case *model.Date:
		if t != nil {
			return *t, true
		}
	case time.Time:
		return model.DateOf(t), true
	case string:
		return model.ParseDate(strings.TrimSpace(t))
	}
	return model.Date{}, false
}

func propDecimal(props model.Properties, key string) decimal.Decimal {
	switch t := props[key].(type) {
	case decimal.Decimal:
		return t
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Zero
		}
		return decimal.NewFromFloat(t)
	case float32:
		return decimal.NewFromFloat32(t)
	case int:
		return decimal.NewFromInt(int64(t))
	case int32:
		return decimal.NewFromInt32(t)
	case int64:
		return decimal.NewFromInt(t)
	case string:
		return parseDecimal(t)
	case fmt.Stringer:
		// json.Number and friends.
		return parseDecimal(t.String())
	}
	return decimal.Zero
}

func propInt(props model.Properties, key string) int {
	switch t := props[key].(type) {
	case int:
		return t
	case int32:
		return int(t)
	case int64:
		return int(t)
	case float64:
		return int(t)
	case float32:
		return int(t)
	case decimal.Decimal:
		return int(t.IntPart())
	case string:
		return parseInt(t)
	case fmt.Stringer:
		return parseInt(t.String())
	}
	return 0
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseInt(s string) int {
	s = strings.TrimSpace(s)
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	// "12.0" still means twelve months.
	if d, err := decimal.NewFromString(s); err == nil {
		return int(d.IntPart())
	}
	return 0
}
