package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseAmount reads a money amount typed by a user into cents. It accepts the
// es-AR format ("1.500,50"), plain decimals ("1500.50") and integers. Input it
// cannot read unambiguously is an error, never a silent zero.
func ParseAmount(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	if s == "" {
		return 0, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	var intPart, fracPart string
	switch {
	case lastDot >= 0 && lastComma >= 0:
		decimal := ","
		thousands := "."
		if lastDot > lastComma {
			decimal, thousands = ".", ","
		}
		parts := strings.Split(s, decimal)
		if len(parts) != 2 {
			return 0, ErrInvalidAmount
		}
		if !validGrouping(parts[0], thousands) {
			return 0, ErrInvalidAmount
		}
		intPart = strings.ReplaceAll(parts[0], thousands, "")
		fracPart = parts[1]
	case lastComma >= 0:
		parts := strings.Split(s, ",")
		if len(parts) != 2 {
			return 0, ErrInvalidAmount
		}
		intPart, fracPart = parts[0], parts[1]
	case lastDot >= 0:
		parts := strings.Split(s, ".")
		if len(parts) > 2 || (len(parts) == 2 && len(parts[1]) == 3) {
			// "1.500" and "1.500.000" use the dot as thousands separator.
			if !validGrouping(s, ".") {
				return 0, ErrInvalidAmount
			}
			intPart = strings.ReplaceAll(s, ".", "")
		} else {
			intPart, fracPart = parts[0], parts[1]
		}
	default:
		intPart = s
	}

	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > 2 || !allDigits(intPart) || !allDigits(fracPart) {
		return 0, ErrInvalidAmount
	}
	for len(fracPart) < 2 {
		fracPart += "0"
	}
	units, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil || units > maxAmountUnits {
		return 0, ErrInvalidAmount
	}
	cents, _ := strconv.ParseInt(fracPart, 10, 64)
	return units*100 + cents, nil
}

const maxAmountUnits = 1_000_000_000

// FormatAmount renders cents in es-AR notation: "$ 1.500,50".
func FormatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	units := strconv.FormatInt(cents/100, 10)
	var b strings.Builder
	for i, r := range units {
		if i > 0 && (len(units)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%s$ %s,%02d", sign, b.String(), cents%100)
}

func validGrouping(s, sep string) bool {
	groups := strings.Split(s, sep)
	if len(groups) == 1 {
		return true
	}
	if len(groups[0]) == 0 || len(groups[0]) > 3 {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return false
		}
	}
	return true
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
