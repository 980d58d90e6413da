package commands

import (
	"reflect"
	"testing"

	"github.com/bcycle-automations/bcycle-automations/airtable"
)

func TestReportRows(t *testing.T) {
	feedback := []airtable.Record{
		{ID: "rec1", Fields: map[string]any{"Class": "Cycle 45", "Rating": 5.0}},
		{ID: "rec2", Fields: map[string]any{"Class": "Cycle 45", "Rating": 4.0}},
		{ID: "rec3", Fields: map[string]any{"Class": "Beats", "Rating": 3.0}},
		{ID: "rec4", Fields: map[string]any{"Rating": 2.0}},
	}

	expected := [][]interface{}{
		{"Class", "Ratings", "Average"},
		{"(unclassified)", 1, 2.0},
		{"Beats", 1, 3.0},
		{"Cycle 45", 2, 4.5},
	}

	rows := reportRows(feedback)

	if !reflect.DeepEqual(rows, expected) {
		t.Errorf("Incorrect report rows\n   expected: %v\n   got:      %v\n", expected, rows)
	}
}

func TestReportRowsWithNoFeedback(t *testing.T) {
	expected := [][]interface{}{
		{"Class", "Ratings", "Average"},
	}

	rows := reportRows([]airtable.Record{})

	if !reflect.DeepEqual(rows, expected) {
		t.Errorf("Incorrect report rows\n   expected: %v\n   got:      %v\n", expected, rows)
	}
}
