package cache

import (
	"regexp"
	"strconv"
	"strings"
)

// Numbers are generalized before embedding so "75%" and "30 Prozent" hit
// the same entry. The value from the query is injected back into the
// result's numeric slots.
const (
	canonicalPercent     = "50 Prozent"
	canonicalTemperature = "21 Grad"
)

var (
	percentPattern     = regexp.MustCompile(`(?i)(\d+)\s*(?:%|prozent\b|percent\b)`)
	temperaturePattern = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(?:°c?|grad\b|degrees?\b)`)
)

var numericSlotKeys = []string{"position", "brightness", "temperature", "volume_level", "humidity"}

// NormalizeNumbers replaces percentages with "50 Prozent" or, when there are
// none, temperatures with "21 Grad". It returns the rewritten text and the
// values it replaced, in order.
func NormalizeNumbers(text string) (string, []any) {
	var values []any
	out := replaceSubmatches(percentPattern, text, func(num string) string {
		if v, err := strconv.Atoi(num); err == nil {
			values = append(values, v)
		}
		return canonicalPercent
	})
	if out != text {
		return out, values
	}

	out = replaceSubmatches(temperaturePattern, text, func(num string) string {
		if strings.ContainsAny(num, ".,") {
			if f, err := strconv.ParseFloat(strings.Replace(num, ",", ".", 1), 64); err == nil {
				values = append(values, f)
			}
		} else if v, err := strconv.Atoi(num); err == nil {
			values = append(values, v)
		}
		return canonicalTemperature
	})
	return out, values
}

// replaceSubmatches replaces each match of re with repl(first group).
func replaceSubmatches(re *regexp.Regexp, text string, repl func(group string) string) string {
	locs := re.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, loc := range locs {
		b.WriteString(text[last:loc[0]])
		b.WriteString(repl(text[loc[2]:loc[3]]))
		last = loc[1]
	}
	b.WriteString(text[last:])
	return b.String()
}

// injectNumbers returns a copy of slots with the first extracted value
// written into every numeric slot present.
func injectNumbers(slots map[string]any, values []any) map[string]any {
	out := copySlots(slots)
	if len(values) == 0 {
		return out
	}
	for _, k := range numericSlotKeys {
		if _, ok := out[k]; ok {
			out[k] = values[0]
		}
	}
	return out
}
