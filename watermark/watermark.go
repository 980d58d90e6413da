// Package watermark persists the hour-bucket checkpoint that makes the
// reminder job resumable and idempotent across invocations.
//
// The watermark is owned by a single job instance at a time; there is no file
// locking, so concurrent invocations against the same state file would race.
// Invocations are expected to be serialized by the external scheduler.
package watermark

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Watermark records the last fully processed hour of the rolling target date.
// A LastProcessedHour of -1 means no hour has been processed yet.
type Watermark struct {
	TargetDate        string `json:"targetDate"`
	LastProcessedHour int    `json:"lastProcessedHour"`
}

// Load reads the watermark from file. A missing or unparsable file loads as
// the zero watermark so that a fresh or corrupted state file simply restarts
// the target date from the beginning.
func Load(file string) Watermark {
	w := Watermark{
		TargetDate:        "",
		LastProcessedHour: -1,
	}

	b, err := os.ReadFile(file)
	if err != nil {
		return w
	}

	if err := json.Unmarshal(b, &w); err != nil {
		return Watermark{TargetDate: "", LastProcessedHour: -1}
	}

	return w
}

// Store writes the watermark atomically (temp file and rename), creating the
// state directory if necessary.
func (w Watermark) Store(file string) error {
	dir := filepath.Dir(file)
	if err := os.MkdirAll(dir, 0770); err != nil {
		return err
	}

	b, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "watermark")
	if err != nil {
		return err
	}

	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), file)
}

// TargetDate returns the calendar date offset days after now, in UTC.
func TargetDate(now time.Time, offset int) string {
	return now.UTC().AddDate(0, 0, offset).Format("2006-01-02")
}

// HoursToProcess computes the inclusive range of not-yet-processed hour
// buckets for the target date offset days from now. When the target date has
// advanced since the last run the watermark is reset before the range is
// computed. An empty range means this invocation has nothing to do - either
// the job already ran this hour or the state file is ahead of the clock.
func (w *Watermark) HoursToProcess(now time.Time, offset int) []int {
	target := TargetDate(now, offset)
	if w.TargetDate != target {
		w.TargetDate = target
		w.LastProcessedHour = -1
	}

	current := now.UTC().Hour()

	hours := []int{}
	for h := w.LastProcessedHour + 1; h <= current; h++ {
		hours = append(hours, h)
	}

	return hours
}

// Advance marks the given hour as fully processed.
func (w *Watermark) Advance(hour int) {
	if hour > w.LastProcessedHour {
		w.LastProcessedHour = hour
	}
}

// Bucket returns the UTC half-open interval [h:00, h+1:00) of the given hour
// on the watermark's target date.
func (w Watermark) Bucket(hour int) (time.Time, time.Time, error) {
	day, err := time.Parse("2006-01-02", w.TargetDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, time.UTC)

	return start, start.Add(time.Hour), nil
}
