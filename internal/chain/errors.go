package chain

import (
	"regexp"
	"strconv"
	"strings"
)

// Providers reject eth_getLogs queries over ranges they consider too wide,
// each with its own message. Some (Alchemy-style) include the range they
// would accept, which the scanner uses as its sub-division size.

var rangeTooLargeMarkers = []string{
	"query returned more than",
	"block range is too wide",
	"block range should work",
	"response size exceeded",
	"range too large",
	"exceed maximum block range",
	"too many results",
}

// suggestedRangePattern matches "[0x..., 0x...]" in provider error payloads.
var suggestedRangePattern = regexp.MustCompile(`\[\s*(0x[0-9a-fA-F]+)\s*,\s*(0x[0-9a-fA-F]+)\s*\]`)

// IsRangeTooLarge reports whether err is a provider "response too large"
// rejection, and the suggested safe range size in blocks when the provider
// offered one (0 otherwise).
func IsRangeTooLarge(err error) (suggested uint64, ok bool) {
	if err == nil {
		return 0, false
	}
	msg := strings.ToLower(err.Error())

	matched := false
	for _, marker := range rangeTooLargeMarkers {
		if strings.Contains(msg, marker) {
			matched = true
			break
		}
	}
	if !matched {
		return 0, false
	}

	if m := suggestedRangePattern.FindStringSubmatch(err.Error()); m != nil {
		from, errFrom := strconv.ParseUint(strings.TrimPrefix(m[1], "0x"), 16, 64)
		to, errTo := strconv.ParseUint(strings.TrimPrefix(m[2], "0x"), 16, 64)
		if errFrom == nil && errTo == nil && to >= from {
			return to - from + 1, true
		}
	}
	return 0, true
}
