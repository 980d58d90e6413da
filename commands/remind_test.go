package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/bcycle-automations/bcycle-automations/airtable"
	"github.com/bcycle-automations/bcycle-automations/marianatek"
	"github.com/bcycle-automations/bcycle-automations/watermark"
)

type sentMail struct {
	to      string
	subject string
}

type fakeMailer struct {
	sent []sentMail
	fail bool
}

func (m *fakeMailer) Send(ctx context.Context, to string, subject string, body string) error {
	if m.fail {
		return fmt.Errorf("mail service unavailable")
	}

	m.sent = append(m.sent, sentMail{to: to, subject: subject})

	return nil
}

// studioServer serves one reservation in the 07:00 bucket of 2026-03-10 and
// records the reservation windows queried.
func studioServer(t *testing.T, windows *[]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/reservations"):
			min := r.URL.Query().Get("min_start_datetime")
			*windows = append(*windows, min)

			if min == "2026-03-10T07:00:00Z" {
				fmt.Fprintln(w, `{
					"data": [{
						"id": "777",
						"type": "reservations",
						"attributes": {"status":"reserved"},
						"relationships": {
							"user": {"data":{"id":"314","type":"users"}},
							"class_session": {"data":{"id":"9001","type":"class_sessions"}}
						}
					}],
					"links": {}
				}`)
				return
			}

			fmt.Fprintln(w, `{"data":[],"links":{}}`)

		case strings.HasPrefix(r.URL.Path, "/class_sessions/9001"):
			fmt.Fprintln(w, `{
				"data": {
					"id": "9001",
					"type": "class_sessions",
					"attributes": {"name":"Cycle 45","classroom_name":"Studio A","start_datetime":"2026-03-10T07:30:00Z"}
				}
			}`)

		case strings.HasPrefix(r.URL.Path, "/users/314"):
			fmt.Fprintln(w, `{
				"data": {
					"id": "314",
					"type": "users",
					"attributes": {"email":"Jane@example.com","first_name":"Jane","last_name":"Doe"}
				}
			}`)

		default:
			t.Errorf("Unexpected studio API request: %s", r.URL)
		}
	}))
}

// baseServer accepts customer upserts and run-log writes.
func baseServer(t *testing.T, upserts *[]map[string]any) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Records []airtable.Record `json:"records"`
		}

		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&body)
		}

		if r.Method == http.MethodPatch && strings.Contains(r.URL.Path, "Customers") {
			for _, record := range body.Records {
				*upserts = append(*upserts, record.Fields)
			}
		}

		for i := range body.Records {
			if body.Records[i].ID == "" {
				body.Records[i].ID = fmt.Sprintf("rec%d", i+1)
			}
		}

		json.NewEncoder(w).Encode(map[string]any{"records": body.Records})
	}))
}

func TestRemindCatchesUpHourBuckets(t *testing.T) {
	windows := []string{}
	studio := studioServer(t, &windows)
	defer studio.Close()

	upserts := []map[string]any{}
	base := baseServer(t, &upserts)
	defer base.Close()

	at := airtable.NewClient("keyXXXX", "appXXXX")
	at.BaseURL = base.URL

	mt := marianatek.NewClient(studio.URL, "tokenXXXX")

	statefile := filepath.Join(t.TempDir(), "reminders.json")

	w := watermark.Watermark{
		TargetDate:        "2026-03-10",
		LastProcessedHour: 5,
	}

	if err := w.Store(statefile); err != nil {
		t.Fatalf("Unexpected error storing watermark (%v)", err)
	}

	mail := fakeMailer{}

	cmd := RemindCmd
	cmd.statefile = statefile
	cmd.pause = 0

	now := time.Date(2026, time.March, 9, 8, 20, 0, 0, time.UTC)

	if err := cmd.run(context.Background(), at, mt, &mail, "", "America/New_York", now); err != nil {
		t.Fatalf("Unexpected error returned from run (%v)", err)
	}

	expected := []string{"2026-03-10T06:00:00Z", "2026-03-10T07:00:00Z", "2026-03-10T08:00:00Z"}
	if !reflect.DeepEqual(windows, expected) {
		t.Errorf("Incorrect bucket windows\n   expected: %v\n   got:      %v\n", expected, windows)
	}

	if len(mail.sent) != 1 {
		t.Fatalf("Incorrect sent mail count\n   expected: %v\n   got:      %v\n", 1, len(mail.sent))
	}

	if mail.sent[0].to != "jane@example.com" {
		t.Errorf("Incorrect recipient\n   expected: %v\n   got:      %v\n", "jane@example.com", mail.sent[0].to)
	}

	// 07:30 UTC is 03:30 in New York (EDT starts March 8th 2026)
	if expected := "Reminder: Cycle 45 tomorrow at 3:30 AM"; mail.sent[0].subject != expected {
		t.Errorf("Incorrect subject\n   expected: %v\n   got:      %v\n", expected, mail.sent[0].subject)
	}

	if len(upserts) != 1 || upserts[0]["Email"] != "jane@example.com" {
		t.Errorf("Incorrect customer upserts: %v", upserts)
	}

	final := watermark.Load(statefile)
	if final.LastProcessedHour != 8 || final.TargetDate != "2026-03-10" {
		t.Errorf("Incorrect final watermark: %+v", final)
	}
}

func TestRemindIsANoOpWithinTheSameHour(t *testing.T) {
	windows := []string{}
	studio := studioServer(t, &windows)
	defer studio.Close()

	upserts := []map[string]any{}
	base := baseServer(t, &upserts)
	defer base.Close()

	at := airtable.NewClient("keyXXXX", "appXXXX")
	at.BaseURL = base.URL

	mt := marianatek.NewClient(studio.URL, "tokenXXXX")

	statefile := filepath.Join(t.TempDir(), "reminders.json")

	w := watermark.Watermark{
		TargetDate:        "2026-03-10",
		LastProcessedHour: 8,
	}

	if err := w.Store(statefile); err != nil {
		t.Fatalf("Unexpected error storing watermark (%v)", err)
	}

	mail := fakeMailer{}

	cmd := RemindCmd
	cmd.statefile = statefile
	cmd.pause = 0

	now := time.Date(2026, time.March, 9, 8, 45, 0, 0, time.UTC)

	if err := cmd.run(context.Background(), at, mt, &mail, "", "America/New_York", now); err != nil {
		t.Fatalf("Unexpected error returned from run (%v)", err)
	}

	if len(windows) != 0 {
		t.Errorf("Expected no reservation queries, got %v", windows)
	}

	if len(mail.sent) != 0 {
		t.Errorf("Expected no mail, got %v", mail.sent)
	}
}

func TestRemindContinuesPastSendFailures(t *testing.T) {
	windows := []string{}
	studio := studioServer(t, &windows)
	defer studio.Close()

	upserts := []map[string]any{}
	base := baseServer(t, &upserts)
	defer base.Close()

	at := airtable.NewClient("keyXXXX", "appXXXX")
	at.BaseURL = base.URL

	mt := marianatek.NewClient(studio.URL, "tokenXXXX")

	statefile := filepath.Join(t.TempDir(), "reminders.json")

	w := watermark.Watermark{
		TargetDate:        "2026-03-10",
		LastProcessedHour: 6,
	}

	if err := w.Store(statefile); err != nil {
		t.Fatalf("Unexpected error storing watermark (%v)", err)
	}

	mail := fakeMailer{fail: true}

	cmd := RemindCmd
	cmd.statefile = statefile
	cmd.pause = 0

	now := time.Date(2026, time.March, 9, 8, 20, 0, 0, time.UTC)

	// a failed send is a per-record error, not a fatal one
	if err := cmd.run(context.Background(), at, mt, &mail, "", "America/New_York", now); err != nil {
		t.Fatalf("Unexpected error returned from run (%v)", err)
	}

	final := watermark.Load(statefile)
	if final.LastProcessedHour != 8 {
		t.Errorf("Incorrect final watermark hour\n   expected: %v\n   got:      %v\n", 8, final.LastProcessedHour)
	}
}
