package airtable

import (
	"fmt"
	"strings"
)

// Formula helpers for the filterByFormula mini-language. String literals are
// single-quoted with embedded quotes escaped by doubling, per the Airtable
// formula grammar.

func Quote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "\\'") + "'"
}

// Equals builds an exact-match condition on a field.
func Equals(field string, value string) string {
	return fmt.Sprintf("{%s}=%s", field, Quote(value))
}

// EqualsLower builds a case-insensitive exact-match condition, the upsert key
// convention for email fields.
func EqualsLower(field string, value string) string {
	return fmt.Sprintf("LOWER({%s})=%s", field, Quote(strings.ToLower(value)))
}

// SameDay builds a date-equality condition at day granularity.
func SameDay(field string, day string) string {
	return fmt.Sprintf("IS_SAME({%s},%s,'day')", field, Quote(day))
}

func And(conditions ...string) string {
	return fmt.Sprintf("AND(%s)", strings.Join(conditions, ","))
}
