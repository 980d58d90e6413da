// Package marianatek is a read-only client for the Mariana Tek scheduling
// platform API: JSON:API responses negotiated as application/vnd.api+json,
// 'links.next' pagination and rate-limit aware requests.
package marianatek

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bcycle-automations/bcycle-automations/rest"
)

const DefaultPageSize = 100

type Client struct {
	BaseURL  string
	Token    string
	PageSize int

	rest *rest.Client
}

type Location struct {
	ID   string
	Name string
}

type ClassSession struct {
	ID            string
	Name          string
	ClassroomName string
	StartDateTime time.Time
	LocationID    string
}

type Reservation struct {
	ID             string
	Status         string
	UserID         string
	ClassSessionID string
}

type User struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
}

type Checkin struct {
	UserID      string
	Email       string
	CheckedInAt time.Time
}

// JSON:API envelope. Data is an object for single-resource endpoints and an
// array for list endpoints, so it is decoded in two steps.
type document struct {
	Data  json.RawMessage `json:"data"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

type resource struct {
	ID            string                  `json:"id"`
	Type          string                  `json:"type"`
	Attributes    json.RawMessage         `json:"attributes"`
	Relationships map[string]relationship `json:"relationships"`
}

type relationship struct {
	Data *struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"data"`
}

func (r resource) related(name string) string {
	if rel, ok := r.Relationships[name]; ok && rel.Data != nil {
		return rel.Data.ID
	}

	return ""
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Token:    token,
		PageSize: DefaultPageSize,
		rest:     rest.NewClient(),
	}
}

func (c *Client) header() http.Header {
	return http.Header{
		"Authorization": []string{"Bearer " + c.Token},
		"Accept":        []string{"application/vnd.api+json"},
	}
}

// list pages through a collection endpoint, following links.next verbatim.
func (c *Client) list(ctx context.Context, path string, query url.Values) ([]resource, error) {
	query.Set("page_size", strconv.Itoa(c.PageSize))
	first := c.BaseURL + path + "?" + query.Encode()

	page := func(cursor string) ([]resource, string, error) {
		u := cursor
		if u == "" {
			u = first
		}

		b, err := c.rest.Do(ctx, http.MethodGet, u, c.header(), nil)
		if err != nil {
			return nil, "", err
		}

		doc := document{}
		if err := json.Unmarshal(b, &doc); err != nil {
			return nil, "", fmt.Errorf("cannot decode response from %s (%v)", path, err)
		}

		resources := []resource{}
		if err := json.Unmarshal(doc.Data, &resources); err != nil {
			return nil, "", fmt.Errorf("cannot decode resource list from %s (%v)", path, err)
		}

		return resources, doc.Links.Next, nil
	}

	return rest.FetchAllPages(page, 0)
}

// get fetches a single resource by id.
func (c *Client) get(ctx context.Context, path string, id string) (*resource, error) {
	b, err := c.rest.Do(ctx, http.MethodGet, c.BaseURL+path+"/"+url.PathEscape(id), c.header(), nil)
	if err != nil {
		return nil, err
	}

	doc := document{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("cannot decode response from %s/%s (%v)", path, id, err)
	}

	r := resource{}
	if err := json.Unmarshal(doc.Data, &r); err != nil {
		return nil, fmt.Errorf("cannot decode resource %s/%s (%v)", path, id, err)
	}

	return &r, nil
}

func (c *Client) Locations(ctx context.Context) ([]Location, error) {
	resources, err := c.list(ctx, "/locations", url.Values{})
	if err != nil {
		return nil, err
	}

	locations := make([]Location, len(resources))
	for i, r := range resources {
		var attributes struct {
			Name string `json:"name"`
		}

		if err := json.Unmarshal(r.Attributes, &attributes); err != nil {
			return nil, fmt.Errorf("cannot decode location %s (%v)", r.ID, err)
		}

		locations[i] = Location{ID: r.ID, Name: attributes.Name}
	}

	return locations, nil
}

// ClassSessions lists the sessions at a location whose start time falls in
// [min, max). Both bounds are UTC.
func (c *Client) ClassSessions(ctx context.Context, locationID string, min, max time.Time) ([]ClassSession, error) {
	query := url.Values{}
	query.Set("location", locationID)
	query.Set("min_start_datetime", min.UTC().Format(time.RFC3339))
	query.Set("max_start_datetime", max.UTC().Format(time.RFC3339))

	resources, err := c.list(ctx, "/class_sessions", query)
	if err != nil {
		return nil, err
	}

	sessions := make([]ClassSession, len(resources))
	for i, r := range resources {
		session, err := classSession(r)
		if err != nil {
			return nil, err
		}

		sessions[i] = *session
	}

	return sessions, nil
}

// Reservations lists reservations for sessions starting in [min, max) with
// one of the given statuses.
func (c *Client) Reservations(ctx context.Context, min, max time.Time, statuses []string) ([]Reservation, error) {
	query := url.Values{}
	query.Set("min_start_datetime", min.UTC().Format(time.RFC3339))
	query.Set("max_start_datetime", max.UTC().Format(time.RFC3339))

	if len(statuses) > 0 {
		query.Set("status", strings.Join(statuses, ","))
	}

	resources, err := c.list(ctx, "/reservations", query)
	if err != nil {
		return nil, err
	}

	reservations := make([]Reservation, len(resources))
	for i, r := range resources {
		var attributes struct {
			Status string `json:"status"`
		}

		if err := json.Unmarshal(r.Attributes, &attributes); err != nil {
			return nil, fmt.Errorf("cannot decode reservation %s (%v)", r.ID, err)
		}

		reservations[i] = Reservation{
			ID:             r.ID,
			Status:         attributes.Status,
			UserID:         r.related("user"),
			ClassSessionID: r.related("class_session"),
		}
	}

	return reservations, nil
}

// Checkins lists individual check-in events from min onwards.
func (c *Client) Checkins(ctx context.Context, min time.Time) ([]Checkin, error) {
	query := url.Values{}
	query.Set("min_datetime", min.UTC().Format(time.RFC3339))

	resources, err := c.list(ctx, "/check_ins", query)
	if err != nil {
		return nil, err
	}

	checkins := make([]Checkin, len(resources))
	for i, r := range resources {
		var attributes struct {
			Email             string `json:"user_email"`
			CheckedInDateTime string `json:"checked_in_datetime"`
		}

		if err := json.Unmarshal(r.Attributes, &attributes); err != nil {
			return nil, fmt.Errorf("cannot decode check-in %s (%v)", r.ID, err)
		}

		at, err := time.Parse(time.RFC3339, attributes.CheckedInDateTime)
		if err != nil {
			return nil, fmt.Errorf("cannot parse check-in time '%s' (%v)", attributes.CheckedInDateTime, err)
		}

		checkins[i] = Checkin{
			UserID:      r.related("user"),
			Email:       attributes.Email,
			CheckedInAt: at,
		}
	}

	return checkins, nil
}

func (c *Client) FetchUser(ctx context.Context, id string) (*User, error) {
	r, err := c.get(ctx, "/users", id)
	if err != nil {
		return nil, err
	}

	var attributes struct {
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}

	if err := json.Unmarshal(r.Attributes, &attributes); err != nil {
		return nil, fmt.Errorf("cannot decode user %s (%v)", id, err)
	}

	return &User{
		ID:        r.ID,
		Email:     attributes.Email,
		FirstName: attributes.FirstName,
		LastName:  attributes.LastName,
	}, nil
}

func (c *Client) FetchClassSession(ctx context.Context, id string) (*ClassSession, error) {
	r, err := c.get(ctx, "/class_sessions", id)
	if err != nil {
		return nil, err
	}

	return classSession(*r)
}

func classSession(r resource) (*ClassSession, error) {
	var attributes struct {
		Name          string `json:"name"`
		ClassroomName string `json:"classroom_name"`
		StartDateTime string `json:"start_datetime"`
	}

	if err := json.Unmarshal(r.Attributes, &attributes); err != nil {
		return nil, fmt.Errorf("cannot decode class session %s (%v)", r.ID, err)
	}

	start, err := time.Parse(time.RFC3339, attributes.StartDateTime)
	if err != nil {
		return nil, fmt.Errorf("cannot parse class session start time '%s' (%v)", attributes.StartDateTime, err)
	}

	return &ClassSession{
		ID:            r.ID,
		Name:          attributes.Name,
		ClassroomName: attributes.ClassroomName,
		StartDateTime: start.UTC(),
		LocationID:    r.related("location"),
	}, nil
}
