// Package webhook posts derived payloads to a workflow automation endpoint.
//
// Delivery is at most once: the caller gets the HTTP status check and nothing
// else. A failed notification is logged by the caller, never retried, and
// never rolls back whatever write preceded it - the spreadsheet database is
// the system of record and the webhook is a notification side channel.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

var client = &http.Client{Timeout: 30 * time.Second}

// Notify posts the payload as a flat JSON object, adding a generated
// event_id so the receiving workflow can discard duplicates.
func Notify(ctx context.Context, url string, payload map[string]any) error {
	body := map[string]any{
		"event_id": uuid.NewString(),
	}

	for k, v := range payload {
		body[k] = v
	}

	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	rq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}

	rq.Header.Set("Content-Type", "application/json")

	response, err := client.Do(rq)
	if err != nil {
		return err
	}

	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		b, _ := io.ReadAll(response.Body)
		return fmt.Errorf("webhook returned status %d: %s", response.StatusCode, string(b))
	}

	return nil
}
