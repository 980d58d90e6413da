package commands

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bcycle-automations/bcycle-automations/airtable"
)

// runlog writes a per-invocation record to the run-log table so that job
// outcomes are visible alongside the data they touched. A nil runlog (job
// started with --no-log, or the initial create failed) is a no-op.
type runlog struct {
	client   *airtable.Client
	table    string
	recordID string
	runID    string
	issues   []string
}

// startRunLog creates the run-log record up front with a 'running' status.
// Failure to create the record is reported but does not stop the job.
func startRunLog(ctx context.Context, client *airtable.Client, table string, job string) *runlog {
	r := runlog{
		client: client,
		table:  table,
		runID:  uuid.NewString(),
	}

	fields := map[string]any{
		"Run ID":     r.runID,
		"Job":        job,
		"Status":     "running",
		"Started At": time.Now().UTC().Format(time.RFC3339),
	}

	created, err := client.Create(ctx, table, []map[string]any{fields})
	if err != nil || len(created) == 0 {
		warnf("could not create run log record (%v)", err)
		return nil
	}

	r.recordID = created[0].ID

	return &r
}

// issue appends a human-readable line to the issue log written back with the
// final status.
func (r *runlog) issue(line string) {
	if r == nil {
		return
	}

	r.issues = append(r.issues, line)
}

// finish updates the run-log record with the final status. Best effort: a
// failed update is logged and never masks the job's own error.
func (r *runlog) finish(ctx context.Context, status string, fields map[string]any) {
	if r == nil || r.recordID == "" {
		return
	}

	update := map[string]any{
		"Status":      status,
		"Finished At": time.Now().UTC().Format(time.RFC3339),
	}

	for k, v := range fields {
		update[k] = v
	}

	if len(r.issues) > 0 {
		update["Issues"] = strings.Join(r.issues, "\n")
	}

	records := []airtable.Record{
		{ID: r.recordID, Fields: update},
	}

	if _, err := r.client.Update(ctx, r.table, records); err != nil {
		warnf("could not update run log record %s (%v)", r.recordID, err)
	}
}
