// Package wallclock converts the scheduling timestamps stored in Airtable to
// UTC instants.
//
// The source timestamps are wall-clock times in the studio's own timezone but
// are stored with a UTC marker, so the marker cannot be trusted. The default
// policy (PolicyLocal) strips any trailing zone designator, interprets the
// numeric components as wall time in a named IANA zone and computes the UTC
// instant for that specific date, which keeps daylight-saving transitions
// correct. PolicyUTC trusts the components as UTC verbatim for deployments
// where the source data has been fixed.
package wallclock

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

type Policy string

const (
	PolicyLocal Policy = "local"
	PolicyUTC   Policy = "utc"
)

// Accepted shapes: bare date, date+time and date+time+seconds, with either a
// 'T' or a space separator and an optional fractional second and trailing
// zone designator. The zone designator is matched only so that it can be
// discarded.
var shape = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})(?:[T ](\d{2}):(\d{2})(?::(\d{2}))?(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?)?$`)

// ParsePolicy validates a --time-policy flag value.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyLocal:
		return PolicyLocal, nil

	case PolicyUTC:
		return PolicyUTC, nil
	}

	return "", fmt.Errorf("invalid time policy '%s' - expected 'local' or 'utc'", s)
}

// ToUTC interprets the wall-clock components of s as local time in the named
// IANA zone and returns the corresponding UTC instant.
func ToUTC(s string, zone string) (time.Time, error) {
	return Resolve(s, zone, PolicyLocal)
}

// Resolve converts s to a UTC instant per the given policy.
func Resolve(s string, zone string, policy Policy) (time.Time, error) {
	year, month, day, hour, minute, second, err := components(s)
	if err != nil {
		return time.Time{}, err
	}

	loc := time.UTC
	if policy == PolicyLocal {
		if loc, err = time.LoadLocation(zone); err != nil {
			return time.Time{}, fmt.Errorf("unknown timezone '%s' (%v)", zone, err)
		}
	}

	return time.Date(year, time.Month(month), day, hour, minute, second, 0, loc).UTC(), nil
}

func components(s string) (int, int, int, int, int, int, error) {
	match := shape.FindStringSubmatch(s)
	if match == nil {
		return 0, 0, 0, 0, 0, 0, fmt.Errorf("cannot parse date/time '%s'", s)
	}

	fields := make([]int, 6)
	for i, v := range match[1:] {
		if v == "" {
			continue
		}

		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, 0, 0, 0, 0, fmt.Errorf("cannot parse date/time '%s' (%v)", s, err)
		}

		fields[i] = n
	}

	year, month, day := fields[0], fields[1], fields[2]
	hour, minute, second := fields[3], fields[4], fields[5]

	switch {
	case month < 1 || month > 12:
		return 0, 0, 0, 0, 0, 0, fmt.Errorf("invalid month in date/time '%s'", s)

	case day < 1 || day > 31:
		return 0, 0, 0, 0, 0, 0, fmt.Errorf("invalid day in date/time '%s'", s)

	case hour > 23 || minute > 59 || second > 59:
		return 0, 0, 0, 0, 0, 0, fmt.Errorf("invalid time in date/time '%s'", s)
	}

	return year, month, day, hour, minute, second, nil
}
