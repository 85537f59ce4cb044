// Package normalize converts scraped free-text player fields into typed values.
//
// Height, weight and position helpers are lenient: malformed input yields NULL.
// Dates are strict and report ErrDateFormat.
package normalize

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the "Month DD, YYYY" format used by the source pages.
const DateLayout = "January 2, 2006"

const (
	positionSeparator = " and "
	metersPerFoot     = 0.3048
	metersPerInch     = 0.0254
)

// ErrDateFormat is wrapped by every date parse failure.
var ErrDateFormat = errors.New("date does not match \"Month DD, YYYY\"")

// SplitPositions splits a combined position such as "Guard and Forward".
// Absent input returns nil, distinct from an empty slice.
func SplitPositions(text sql.NullString) []string {
	if !text.Valid {
		return nil
	}
	return strings.Split(text.String, positionSeparator)
}

// Weight holds the pounds and kilograms parts of a weight text.
type Weight struct {
	Pounds    sql.NullString
	Kilograms sql.NullString
}

// Values converts both parts to numbers; a part that is not numeric is NULL.
func (w Weight) Values() (pounds, kilograms sql.NullFloat64) {
	return toFloat(w.Pounds), toFloat(w.Kilograms)
}

// SplitWeight parses "<pounds>lb (<kilograms>kg)". The parenthetical may also
// carry a centimetre height ("(198cm, 97kg)"); only the value directly before
// "kg)" is kept. Without a parenthetical Kilograms is NULL.
func SplitWeight(text sql.NullString) Weight {
	if !text.Valid {
		return Weight{}
	}
	var w Weight

	head, paren, hasParen := strings.Cut(text.String, "(")
	pounds := strings.TrimSpace(strings.Replace(head, "lb", "", 1))
	if pounds != "" {
		w.Pounds = sql.NullString{String: pounds, Valid: true}
	}

	if hasParen {
		if inner, _, ok := strings.Cut(paren, "kg)"); ok {
			if i := strings.LastIndex(inner, ","); i >= 0 {
				inner = inner[i+1:]
			}
			if kg := strings.TrimSpace(inner); kg != "" {
				w.Kilograms = sql.NullString{String: kg, Valid: true}
			}
		}
	}
	return w
}

// ConvertHeight converts "<feet>-<inches>" to meters rounded to two decimals.
// Input without exactly one "-" or with non-numeric parts is NULL.
func ConvertHeight(text sql.NullString) sql.NullFloat64 {
	if !text.Valid {
		return sql.NullFloat64{}
	}
	parts := strings.Split(text.String, "-")
	if len(parts) != 2 {
		return sql.NullFloat64{}
	}
	feet, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return sql.NullFloat64{}
	}
	inches, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return sql.NullFloat64{}
	}
	if !finite(feet) || !finite(inches) {
		return sql.NullFloat64{}
	}
	meters := feet*metersPerFoot + inches*metersPerInch
	return sql.NullFloat64{Float64: math.Round(meters*100) / 100, Valid: true}
}

// ParseDate parses "Month DD, YYYY" strictly.
func ParseDate(text string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(text))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrDateFormat, text)
	}
	return t, nil
}

// ParseOptionalDate leaves an absent date NULL and parses a present one strictly.
func ParseOptionalDate(text sql.NullString) (sql.NullTime, error) {
	if !text.Valid {
		return sql.NullTime{}, nil
	}
	t, err := ParseDate(text.String)
	if err != nil {
		return sql.NullTime{}, err
	}
	return sql.NullTime{Time: t, Valid: true}, nil
}

func toFloat(s sql.NullString) sql.NullFloat64 {
	if !s.Valid {
		return sql.NullFloat64{}
	}
	f, err := strconv.ParseFloat(s.String, 64)
	if err != nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
