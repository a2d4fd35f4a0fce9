package intake

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
)

// ErrInvalidAmount is returned for answers that carry no usable number.
var ErrInvalidAmount = errors.New("not a valid amount")

// maxAmount keeps parsed values well inside int64 arithmetic.
const maxAmount = 1_000_000_000_000

// ParseAmount reads a whole number from free text such as "450.000 TL",
// "1,250,000", "85 000 km" or "₺450000". Dots, commas and spaces are read
// as thousands separators, so every group after the first must have three
// digits; "1.5" and "450.000,00" are rejected rather than guessed at.
// Letters and currency symbols around the number are ignored. A minus sign
// before the number, or letters between digits, make the answer invalid.
func ParseAmount(text string) (int64, error) {
	var (
		digits     strings.Builder
		groups     int
		groupLen   int
		started    bool
		finished   bool
		separated  bool
		minusFirst bool
	)
	for _, r := range strings.TrimSpace(text) {
		switch {
		case r >= '0' && r <= '9':
			if finished || minusFirst {
				return 0, ErrInvalidAmount
			}
			if !started || separated {
				if groups > 1 && groupLen != 3 {
					return 0, ErrInvalidAmount
				}
				groups++
				groupLen = 0
				separated = false
			}
			started = true
			groupLen++
			digits.WriteRune(r)
		case r == '.' || r == ',' || unicode.IsSpace(r) || r == '\'':
			if started {
				separated = true
			}
		case r == '-' || r == '\u2212':
			if started {
				finished = true
			} else {
				minusFirst = true
			}
		default:
			if started {
				finished = true
			}
			minusFirst = false
		}
	}
	if digits.Len() == 0 || digits.Len() > 13 {
		return 0, ErrInvalidAmount
	}
	if groups > 1 && groupLen != 3 {
		return 0, ErrInvalidAmount
	}

	n, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil || n > maxAmount {
		return 0, ErrInvalidAmount
	}
	return n, nil
}
