// Package airtable is a minimal client for the Airtable REST API, covering
// the operations the automations use: formula-filtered listing with offset
// pagination, batched create/update/delete and upsert-on-named-fields.
package airtable

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bcycle-automations/bcycle-automations/rest"
)

const (
	DefaultBaseURL  = "https://api.airtable.com/v0"
	DefaultPageSize = 100

	// The Airtable write and delete endpoints accept at most 10 records per
	// call.
	batchLimit = 10
)

type Client struct {
	BaseURL  string
	APIKey   string
	BaseID   string
	PageSize int

	rest *rest.Client
}

// Record is the raw field-keyed form returned by the API. Commands construct
// their own narrow typed views from Fields at the boundary.
type Record struct {
	ID          string         `json:"id,omitempty"`
	Fields      map[string]any `json:"fields"`
	CreatedTime string         `json:"createdTime,omitempty"`
}

// ListOptions narrows a List call. A zero MaxRecords imposes no cap.
type ListOptions struct {
	View       string
	Formula    string
	Fields     []string
	MaxRecords int
}

func NewClient(apiKey, baseID string) *Client {
	return &Client{
		BaseURL:  DefaultBaseURL,
		APIKey:   apiKey,
		BaseID:   baseID,
		PageSize: DefaultPageSize,
		rest:     rest.NewClient(),
	}
}

func (c *Client) header() http.Header {
	return http.Header{
		"Authorization": []string{"Bearer " + c.APIKey},
		"Content-Type":  []string{"application/json"},
	}
}

func (c *Client) table(name string) string {
	return fmt.Sprintf("%s/%s/%s", c.BaseURL, c.BaseID, url.PathEscape(name))
}

// List retrieves all records from a table, following the offset token
// returned in each response until the last page.
func (c *Client) List(ctx context.Context, table string, opts ListOptions) ([]Record, error) {
	page := func(offset string) ([]Record, string, error) {
		query := url.Values{}
		query.Set("pageSize", strconv.Itoa(c.PageSize))

		if opts.View != "" {
			query.Set("view", opts.View)
		}

		if opts.Formula != "" {
			query.Set("filterByFormula", opts.Formula)
		}

		for _, field := range opts.Fields {
			query.Add("fields[]", field)
		}

		if offset != "" {
			query.Set("offset", offset)
		}

		b, err := c.rest.Do(ctx, http.MethodGet, c.table(table)+"?"+query.Encode(), c.header(), nil)
		if err != nil {
			return nil, "", err
		}

		var response struct {
			Records []Record `json:"records"`
			Offset  string   `json:"offset"`
		}

		if err := json.Unmarshal(b, &response); err != nil {
			return nil, "", fmt.Errorf("cannot decode list response for table '%s' (%v)", table, err)
		}

		return response.Records, response.Offset, nil
	}

	return rest.FetchAllPages(page, opts.MaxRecords)
}

// First returns the first record matching formula, or nil when there is none.
func (c *Client) First(ctx context.Context, table string, formula string) (*Record, error) {
	records, err := c.List(ctx, table, ListOptions{Formula: formula, MaxRecords: 1})
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, nil
	}

	return &records[0], nil
}

// Get retrieves a single record by id.
func (c *Client) Get(ctx context.Context, table string, id string) (*Record, error) {
	b, err := c.rest.Do(ctx, http.MethodGet, c.table(table)+"/"+url.PathEscape(id), c.header(), nil)
	if err != nil {
		return nil, err
	}

	record := Record{}
	if err := json.Unmarshal(b, &record); err != nil {
		return nil, fmt.Errorf("cannot decode record '%s' from table '%s' (%v)", id, table, err)
	}

	return &record, nil
}

// Create inserts records in batches of 10 and returns the created records
// (with ids) in input order.
func (c *Client) Create(ctx context.Context, table string, fields []map[string]any) ([]Record, error) {
	records := make([]Record, len(fields))
	for i, f := range fields {
		records[i] = Record{Fields: f}
	}

	return c.write(ctx, http.MethodPost, table, records, nil)
}

// Update patches existing records (by Record.ID) in batches of 10.
func (c *Client) Update(ctx context.Context, table string, records []Record) ([]Record, error) {
	return c.write(ctx, http.MethodPatch, table, records, nil)
}

// Upsert updates the record whose mergeOn field values match, creating it
// when there is no match. The merge fields are the documented upsert key for
// the table - they are never inferred.
func (c *Client) Upsert(ctx context.Context, table string, fields []map[string]any, mergeOn []string) ([]Record, error) {
	records := make([]Record, len(fields))
	for i, f := range fields {
		records[i] = Record{Fields: f}
	}

	return c.write(ctx, http.MethodPatch, table, records, mergeOn)
}

func (c *Client) write(ctx context.Context, method string, table string, records []Record, mergeOn []string) ([]Record, error) {
	written := []Record{}

	for start := 0; start < len(records); start += batchLimit {
		end := start + batchLimit
		if end > len(records) {
			end = len(records)
		}

		body := map[string]any{
			"records":  records[start:end],
			"typecast": true,
		}

		if len(mergeOn) > 0 {
			body["performUpsert"] = map[string]any{
				"fieldsToMergeOn": mergeOn,
			}
		}

		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}

		response, err := c.rest.Do(ctx, method, c.table(table), c.header(), b)
		if err != nil {
			return nil, err
		}

		var batch struct {
			Records []Record `json:"records"`
		}

		if err := json.Unmarshal(response, &batch); err != nil {
			return nil, fmt.Errorf("cannot decode write response for table '%s' (%v)", table, err)
		}

		written = append(written, batch.Records...)
	}

	return written, nil
}

// Delete removes records by id, 10 per call, ids passed as repeated query
// parameters.
func (c *Client) Delete(ctx context.Context, table string, ids []string) error {
	for start := 0; start < len(ids); start += batchLimit {
		end := start + batchLimit
		if end > len(ids) {
			end = len(ids)
		}

		query := url.Values{}
		for _, id := range ids[start:end] {
			query.Add("records[]", id)
		}

		if _, err := c.rest.Do(ctx, http.MethodDelete, c.table(table)+"?"+query.Encode(), c.header(), nil); err != nil {
			return err
		}
	}

	return nil
}

// String returns the string value of a record field, or "" when the field is
// absent or not a string.
func (r *Record) String(field string) string {
	if v, ok := r.Fields[field].(string); ok {
		return v
	}

	return ""
}

// Number returns the numeric value of a record field, or 0 when the field is
// absent or not numeric.
func (r *Record) Number(field string) float64 {
	if v, ok := r.Fields[field].(float64); ok {
		return v
	}

	return 0
}
