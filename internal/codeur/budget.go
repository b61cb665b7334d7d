package codeur

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var amountPattern = regexp.MustCompile(`(\d[\d\s\x{00a0}\x{202f}]*)\s*€`)

// ParseBudget reads euro amounts such as "500 € à 1 000 €".
// Two or more amounts give [min, max], a single amount gives [n, n] and no amount gives nil.
func ParseBudget(text string) []int {
	var amounts []int
	for _, match := range amountPattern.FindAllStringSubmatch(text, -1) {
		value, err := strconv.Atoi(stripSpaces(match[1]))
		if err != nil {
			continue
		}
		amounts = append(amounts, value)
	}

	switch len(amounts) {
	case 0:
		return nil
	case 1:
		return []int{amounts[0], amounts[0]}
	default:
		return []int{amounts[0], amounts[1]}
	}
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
