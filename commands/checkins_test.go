package commands

import (
	"reflect"
	"testing"
	"time"

	"github.com/bcycle-automations/bcycle-automations/marianatek"
)

func TestAggregateCheckins(t *testing.T) {
	checkins := []marianatek.Checkin{
		{UserID: "314", Email: "Jane@example.com", CheckedInAt: time.Date(2026, time.June, 1, 14, 0, 0, 0, time.UTC)},
		{UserID: "314", Email: "jane@example.com", CheckedInAt: time.Date(2026, time.June, 8, 14, 0, 0, 0, time.UTC)},
		{UserID: "271", Email: "joe@example.com", CheckedInAt: time.Date(2026, time.May, 20, 9, 0, 0, 0, time.UTC)},
		{UserID: "999", Email: "", CheckedInAt: time.Date(2026, time.May, 21, 9, 0, 0, 0, time.UTC)},
	}

	fields, skipped := aggregateCheckins(checkins)

	expected := []map[string]any{
		{"Email": "jane@example.com", "Check-Ins": 2, "Last Check-In": "2026-06-08"},
		{"Email": "joe@example.com", "Check-Ins": 1, "Last Check-In": "2026-05-20"},
	}

	if !reflect.DeepEqual(fields, expected) {
		t.Errorf("Incorrect aggregation\n   expected: %v\n   got:      %v\n", expected, fields)
	}

	if skipped != 1 {
		t.Errorf("Incorrect skipped count\n   expected: %v\n   got:      %v\n", 1, skipped)
	}
}
