// Package store implements the persistence adapter for the external REST job
// store. It speaks a PostgREST-style protocol against a single table: filters
// are column predicates encoded as query parameters, rows travel as JSON with
// the store's snake_case column names. The adapter owns the translation
// between rows and the API-facing job representation and nothing else, no
// retries and no caching.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultNextSegmentID is the starting value of the client-side segment id
// counter when the store has no value for it.
const DefaultNextSegmentID = 6

// Segment is a single work phase of a job, duration in minutes.
type Segment struct {
	ID       int     `json:"id,omitempty"`
	Name     string  `json:"name,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Delay is an additive time penalty recorded against a job, in minutes.
type Delay struct {
	ID      int     `json:"id,omitempty"`
	Reason  string  `json:"reason,omitempty"`
	Minutes float64 `json:"minutes,omitempty"`
}

// Job is the API-facing job representation, camelCase field names.
// ExpiresAt is derived from the other fields and never set by clients.
type Job struct {
	ID            string     `json:"id"`
	Name          string     `json:"name,omitempty"`
	StartTime     *time.Time `json:"startTime,omitempty"`
	Segments      []Segment  `json:"segments,omitempty"`
	Delays        []Delay    `json:"delays,omitempty"`
	NextSegmentID int        `json:"nextSegmentId,omitempty"`
	CreatedAt     time.Time  `json:"createdAt,omitzero"`
	LastUpdated   time.Time  `json:"lastUpdated,omitzero"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

// Row is the store-native row shape with the store's column names.
// NextSegmentID is a pointer to tell a stored zero from an absent value.
type Row struct {
	JobID         string     `json:"job_id"`
	Name          string     `json:"name,omitempty"`
	StartTime     *time.Time `json:"start_time,omitempty"`
	Segments      []Segment  `json:"segments,omitempty"`
	Delays        []Delay    `json:"delays,omitempty"`
	NextSegmentID *int       `json:"next_segment_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at,omitzero"`
	LastUpdated   time.Time  `json:"last_updated,omitzero"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// RowPatch is the partial row used for updates. All mutable columns are
// always sent so cleared values (e.g. a removed start time) reach the store
// as explicit nulls. job_id and created_at are never part of a patch.
type RowPatch struct {
	Name          string     `json:"name"`
	StartTime     *time.Time `json:"start_time"`
	Segments      []Segment  `json:"segments"`
	Delays        []Delay    `json:"delays"`
	NextSegmentID int        `json:"next_segment_id"`
	LastUpdated   time.Time  `json:"last_updated"`
	ExpiresAt     *time.Time `json:"expires_at"`
}

// Job converts the row to the API-facing representation, applying the
// next-segment counter default for rows without a stored value.
func (r Row) Job() Job {
	j := Job{
		ID:            r.JobID,
		Name:          r.Name,
		StartTime:     r.StartTime,
		Segments:      r.Segments,
		Delays:        r.Delays,
		NextSegmentID: DefaultNextSegmentID,
		CreatedAt:     r.CreatedAt,
		LastUpdated:   r.LastUpdated,
		ExpiresAt:     r.ExpiresAt,
	}
	if r.NextSegmentID != nil {
		j.NextSegmentID = *r.NextSegmentID
	}
	return j
}

// RowFromJob converts an API job to its store row, applying the same
// defaulting rules as the reverse direction.
func RowFromJob(j Job) Row {
	next := j.NextSegmentID
	if next == 0 {
		next = DefaultNextSegmentID
	}
	return Row{
		JobID:         j.ID,
		Name:          j.Name,
		StartTime:     j.StartTime,
		Segments:      j.Segments,
		Delays:        j.Delays,
		NextSegmentID: &next,
		CreatedAt:     j.CreatedAt,
		LastUpdated:   j.LastUpdated,
		ExpiresAt:     j.ExpiresAt,
	}
}

// PatchFromJob builds the partial update row for a job, covering every
// mutable column and nothing else.
func PatchFromJob(j Job) RowPatch {
	next := j.NextSegmentID
	if next == 0 {
		next = DefaultNextSegmentID
	}
	return RowPatch{
		Name:          j.Name,
		StartTime:     j.StartTime,
		Segments:      j.Segments,
		Delays:        j.Delays,
		NextSegmentID: next,
		LastUpdated:   j.LastUpdated,
		ExpiresAt:     j.ExpiresAt,
	}
}

// Cond is a single column predicate in the store's operator syntax,
// e.g. column "job_id" with predicate "eq.J1".
type Cond struct {
	Column string
	Pred   string
}

// Filter is an ordered set of conditions, all of which must hold.
type Filter []Cond

// Eq matches rows where the column equals the value.
func Eq(column, value string) Cond {
	return Cond{Column: column, Pred: "eq." + value}
}

// Lt matches rows where the timestamp column is strictly before t.
// Rows with a null value in the column never match.
func Lt(column string, t time.Time) Cond {
	return Cond{Column: column, Pred: "lt." + t.UTC().Format(time.RFC3339)}
}

// NotNull matches rows where the column has a value.
func NotNull(column string) Cond {
	return Cond{Column: column, Pred: "not.is.null"}
}

// Error is returned on any non-success response from the store, carrying the
// status code and the raw response body.
type Error struct {
	Status int
	Body   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("store responded with %d: %s", e.Status, e.Body)
}

// Client talks to a single table of the external store.
type Client struct {
	baseURL string
	apiKey  string
	table   string
	client  *http.Client
}

// New creates a store client for the given endpoint, credential and table.
// Timeouts on store calls are enforced by the underlying HTTP client.
func New(baseURL, apiKey, table string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		table:   table,
		client:  &http.Client{Timeout: timeout},
	}
}

// Find returns rows matching the filter, ordered by the given column spec,
// e.g. "created_at.desc". Empty order leaves the store's natural order.
func (c *Client) Find(ctx context.Context, f Filter, order string) ([]Row, error) {
	q := url.Values{"select": {"*"}}
	if order != "" {
		q.Set("order", order)
	}
	data, err := c.do(ctx, http.MethodGet, c.url(f, q), nil)
	if err != nil {
		return nil, err
	}
	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode rows: %w", err)
	}
	return rows, nil
}

// Insert creates a row and returns the stored representation.
func (c *Client) Insert(ctx context.Context, r Row) (Row, error) {
	data, err := c.do(ctx, http.MethodPost, c.url(nil, nil), r)
	if err != nil {
		return Row{}, err
	}
	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return Row{}, fmt.Errorf("failed to decode inserted row: %w", err)
	}
	if len(rows) == 0 {
		return r, nil
	}
	return rows[0], nil
}

// Patch applies a partial update to all rows matching the filter.
func (c *Client) Patch(ctx context.Context, f Filter, p RowPatch) error {
	_, err := c.do(ctx, http.MethodPatch, c.url(f, nil), p)
	return err
}

// Delete removes all rows matching the filter.
func (c *Client) Delete(ctx context.Context, f Filter) error {
	_, err := c.do(ctx, http.MethodDelete, c.url(f, nil), nil)
	return err
}

// url builds the table URL with filter predicates and extra query parameters.
func (c *Client) url(f Filter, extra url.Values) string {
	q := url.Values{}
	for k, vs := range extra {
		q[k] = append([]string(nil), vs...)
	}
	for _, cond := range f {
		q.Add(cond.Column, cond.Pred)
	}
	u := c.baseURL + "/" + c.table
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

// do performs a single store call and returns the raw response body.
// Non-2xx responses come back as *Error.
func (c *Client) do(ctx context.Context, method, u string, body any) ([]byte, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPost {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("store call failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read store response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &Error{Status: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}
