// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import "strconv"

// AtoiDefault converts s with strconv.Atoi, returning def when s is empty
// or not an integer.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ParseLimit reads an optional positive limit from a query value. Empty,
// malformed and non-positive values give def; values above max are
// clamped to max when max > 0.
//
// Example:
//
//	utils.ParseLimit("20", 0, 500)   // 20
//	utils.ParseLimit("-1", 0, 500)   // 0
//	utils.ParseLimit("9999", 0, 500) // 500
func ParseLimit(s string, def, max int) int {
	n := AtoiDefault(s, def)
	if n <= 0 {
		return def
	}
	if max > 0 && n > max {
		return max
	}
	return n
}
