package store

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Find(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	next := 8

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/jobs", r.URL.Path)
		assert.Equal(t, "*", r.URL.Query().Get("select"))
		assert.Equal(t, "created_at.desc", r.URL.Query().Get("order"))
		assert.Equal(t, "secret", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		rows := []Row{{JobID: "J1", Name: "pour slab", StartTime: &start, NextSegmentID: &next}}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(rows))
	}))
	defer ts.Close()

	c := New(ts.URL, "secret", "jobs", time.Second)
	rows, err := c.Find(context.Background(), nil, "created_at.desc")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "J1", rows[0].JobID)
	assert.Equal(t, "pour slab", rows[0].Name)
	require.NotNil(t, rows[0].StartTime)
	assert.True(t, start.Equal(*rows[0].StartTime))
}

func TestClient_FindWithFilter(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eq.J1", r.URL.Query().Get("job_id"))
		_, err := w.Write([]byte("[]"))
		require.NoError(t, err)
	}))
	defer ts.Close()

	c := New(ts.URL, "secret", "jobs", time.Second)
	rows, err := c.Find(context.Background(), Filter{Eq("job_id", "J1")}, "")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestClient_FindStoreError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
	}))
	defer ts.Close()

	c := New(ts.URL, "secret", "jobs", time.Second)
	_, err := c.Find(context.Background(), nil, "")
	require.Error(t, err)

	var storeErr *Error
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, http.StatusInternalServerError, storeErr.Status)
	assert.Equal(t, `{"message":"boom"}`, storeErr.Body)
	assert.Contains(t, storeErr.Error(), "500")
}

func TestClient_Insert(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/jobs", r.URL.Path)
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var row Row
		require.NoError(t, json.NewDecoder(r.Body).Decode(&row))
		assert.Equal(t, "J1", row.JobID)

		w.WriteHeader(http.StatusCreated)
		require.NoError(t, json.NewEncoder(w).Encode([]Row{row}))
	}))
	defer ts.Close()

	c := New(ts.URL, "secret", "jobs", time.Second)
	row, err := c.Insert(context.Background(), Row{JobID: "J1", Name: "pour slab"})
	require.NoError(t, err)
	assert.Equal(t, "J1", row.JobID)
	assert.Equal(t, "pour slab", row.Name)
}

func TestClient_Patch(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "eq.J1", r.URL.Query().Get("job_id"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body, "last_updated")
		assert.Contains(t, body, "expires_at", "cleared expiration must be sent as explicit null")
		assert.NotContains(t, body, "job_id")
		assert.NotContains(t, body, "created_at")

		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	c := New(ts.URL, "secret", "jobs", time.Second)
	err := c.Patch(context.Background(), Filter{Eq("job_id", "J1")}, RowPatch{Name: "updated", LastUpdated: now})
	require.NoError(t, err)
}

func TestClient_Delete(t *testing.T) {
	cutoff := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		conds := r.URL.Query()["expires_at"]
		require.Len(t, conds, 2, "both predicates on expires_at must be sent")
		assert.Contains(t, conds, "lt.2024-06-01T12:00:00Z")
		assert.Contains(t, conds, "not.is.null")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	c := New(ts.URL, "secret", "jobs", time.Second)
	err := c.Delete(context.Background(), Filter{Lt("expires_at", cutoff), NotNull("expires_at")})
	require.NoError(t, err)
}

func TestRow_Job(t *testing.T) {
	t.Run("next segment id defaulted when absent", func(t *testing.T) {
		j := Row{JobID: "J1"}.Job()
		assert.Equal(t, DefaultNextSegmentID, j.NextSegmentID)
	})

	t.Run("stored next segment id kept", func(t *testing.T) {
		next := 12
		j := Row{JobID: "J1", NextSegmentID: &next}.Job()
		assert.Equal(t, 12, j.NextSegmentID)
	})

	t.Run("fields mapped", func(t *testing.T) {
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		exp := start.Add(24 * time.Hour)
		row := Row{
			JobID:     "J1",
			Name:      "pour slab",
			StartTime: &start,
			Segments:  []Segment{{ID: 1, Duration: 60}},
			Delays:    []Delay{{Minutes: 15, Reason: "rain"}},
			ExpiresAt: &exp,
		}
		j := row.Job()
		assert.Equal(t, "J1", j.ID)
		assert.Equal(t, "pour slab", j.Name)
		assert.Equal(t, row.Segments, j.Segments)
		assert.Equal(t, row.Delays, j.Delays)
		assert.Equal(t, &exp, j.ExpiresAt)
	})
}

func TestRowFromJob(t *testing.T) {
	row := RowFromJob(Job{ID: "J1", Name: "pour slab"})
	assert.Equal(t, "J1", row.JobID)
	require.NotNil(t, row.NextSegmentID)
	assert.Equal(t, DefaultNextSegmentID, *row.NextSegmentID)

	row = RowFromJob(Job{ID: "J2", NextSegmentID: 9})
	require.NotNil(t, row.NextSegmentID)
	assert.Equal(t, 9, *row.NextSegmentID)
}

func TestPatchFromJob(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	p := PatchFromJob(Job{ID: "J1", Name: "updated", LastUpdated: now})
	assert.Equal(t, "updated", p.Name)
	assert.Equal(t, now, p.LastUpdated)
	assert.Equal(t, DefaultNextSegmentID, p.NextSegmentID)
	assert.Nil(t, p.ExpiresAt)
}
