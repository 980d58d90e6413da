package airtable

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func testClient(url string) *Client {
	c := NewClient("keyXXXX", "appXXXX")
	c.BaseURL = url

	return c
}

func TestListFollowsOffsetToken(t *testing.T) {
	requests := []string{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.Query().Get("offset"))

		if auth := r.Header.Get("Authorization"); auth != "Bearer keyXXXX" {
			t.Errorf("Incorrect Authorization header: %v", auth)
		}

		switch r.URL.Query().Get("offset") {
		case "":
			fmt.Fprintln(w, `{"records":[{"id":"rec1","fields":{"Name":"Jane"}},{"id":"rec2","fields":{"Name":"Joe"}}],"offset":"itrXXX/rec2"}`)

		case "itrXXX/rec2":
			fmt.Fprintln(w, `{"records":[{"id":"rec3","fields":{"Name":"Kim"}}]}`)

		default:
			t.Errorf("Unexpected offset '%s'", r.URL.Query().Get("offset"))
		}
	}))
	defer server.Close()

	records, err := testClient(server.URL).List(context.Background(), "Customers", ListOptions{})
	if err != nil {
		t.Fatalf("Unexpected error returned from List (%v)", err)
	}

	if len(records) != 3 {
		t.Errorf("Incorrect record count\n   expected: %v\n   got:      %v\n", 3, len(records))
	}

	if expected := []string{"", "itrXXX/rec2"}; !reflect.DeepEqual(requests, expected) {
		t.Errorf("Incorrect request offsets\n   expected: %v\n   got:      %v\n", expected, requests)
	}
}

func TestListSendsFilterByFormula(t *testing.T) {
	formula := ""
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		formula = r.URL.Query().Get("filterByFormula")
		fmt.Fprintln(w, `{"records":[]}`)
	}))
	defer server.Close()

	expected := And(EqualsLower("Email", "Jane@example.com"), SameDay("Date", "2026-02-02"))

	if _, err := testClient(server.URL).List(context.Background(), "Feedback", ListOptions{Formula: expected}); err != nil {
		t.Fatalf("Unexpected error returned from List (%v)", err)
	}

	if formula != expected {
		t.Errorf("Incorrect filterByFormula\n   expected: %v\n   got:      %v\n", expected, formula)
	}
}

func TestCreateBatchesOf10(t *testing.T) {
	batches := []int{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Records []Record `json:"records"`
		}

		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Unexpected error decoding request body (%v)", err)
		}

		batches = append(batches, len(body.Records))

		response := struct {
			Records []Record `json:"records"`
		}{Records: body.Records}

		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	fields := make([]map[string]any, 25)
	for i := range fields {
		fields[i] = map[string]any{"Name": fmt.Sprintf("customer %d", i)}
	}

	created, err := testClient(server.URL).Create(context.Background(), "Customers", fields)
	if err != nil {
		t.Fatalf("Unexpected error returned from Create (%v)", err)
	}

	if len(created) != 25 {
		t.Errorf("Incorrect created count\n   expected: %v\n   got:      %v\n", 25, len(created))
	}

	if expected := []int{10, 10, 5}; !reflect.DeepEqual(batches, expected) {
		t.Errorf("Incorrect batch sizes\n   expected: %v\n   got:      %v\n", expected, batches)
	}
}

func TestUpsertSendsMergeFields(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("Incorrect method\n   expected: %v\n   got:      %v\n", http.MethodPatch, r.Method)
		}

		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Unexpected error decoding request body (%v)", err)
		}

		fmt.Fprintln(w, `{"records":[{"id":"rec1","fields":{"Email":"jane@example.com"}}]}`)
	}))
	defer server.Close()

	fields := []map[string]any{
		{"Email": "jane@example.com", "Check-Ins": 12},
	}

	if _, err := testClient(server.URL).Upsert(context.Background(), "Customers", fields, []string{"Email"}); err != nil {
		t.Fatalf("Unexpected error returned from Upsert (%v)", err)
	}

	upsert, ok := body["performUpsert"].(map[string]any)
	if !ok {
		t.Fatalf("Missing performUpsert in request body: %v", body)
	}

	if expected := []any{"Email"}; !reflect.DeepEqual(upsert["fieldsToMergeOn"], expected) {
		t.Errorf("Incorrect fieldsToMergeOn\n   expected: %v\n   got:      %v\n", expected, upsert["fieldsToMergeOn"])
	}
}

func TestDeleteChunksIDs(t *testing.T) {
	batches := [][]string{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("Incorrect method\n   expected: %v\n   got:      %v\n", http.MethodDelete, r.Method)
		}

		batches = append(batches, r.URL.Query()["records[]"])
		fmt.Fprintln(w, `{"records":[]}`)
	}))
	defer server.Close()

	ids := make([]string, 12)
	for i := range ids {
		ids[i] = fmt.Sprintf("rec%d", i)
	}

	if err := testClient(server.URL).Delete(context.Background(), "Run Log", ids); err != nil {
		t.Fatalf("Unexpected error returned from Delete (%v)", err)
	}

	if len(batches) != 2 || len(batches[0]) != 10 || len(batches[1]) != 2 {
		t.Errorf("Incorrect delete batches: %v", batches)
	}
}

func TestFirstReturnsNilForNoMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"records":[]}`)
	}))
	defer server.Close()

	record, err := testClient(server.URL).First(context.Background(), "Feedback", Equals("Contact", "nobody@example.com"))
	if err != nil {
		t.Fatalf("Unexpected error returned from First (%v)", err)
	}

	if record != nil {
		t.Errorf("Expected nil record, got %v", record)
	}
}

func TestQuoteEscapesEmbeddedQuotes(t *testing.T) {
	if quoted := Quote("O'Brien"); quoted != `'O\'Brien'` {
		t.Errorf("Incorrect quoted literal\n   expected: %v\n   got:      %v\n", `'O\'Brien'`, quoted)
	}
}
