package plusvibe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/comet/pkg/config"
	"github.com/ajitpratap0/comet/pkg/connector/core"
	"github.com/ajitpratap0/comet/pkg/models"
)

func newTestSource(t *testing.T, baseURL string) *Source {
	t.Helper()

	cfg := config.NewBaseConfig("plusvibe", "source")
	cfg.Extraction.BaseURL = baseURL
	cfg.Security.Credentials = map[string]string{
		"api_key":      "test-key",
		"workspace_id": "ws-1",
	}
	cfg.Reliability.CircuitBreaker = false
	cfg.Performance.BatchSize = 2

	s := NewSource()
	require.NoError(t, s.Initialize(context.Background(), cfg))
	return s
}

func drain(t *testing.T, stream *core.RecordStream) []*models.Record {
	t.Helper()

	var records []*models.Record
	for record := range stream.Records {
		records = append(records, record)
	}
	select {
	case err := <-stream.Errors:
		require.NoError(t, err)
	default:
	}
	return records
}

func TestCatalog(t *testing.T) {
	catalog := buildCatalog()
	require.NoError(t, catalog.Validate())
	assert.Equal(t, []string{"campaigns", "campaign_leads", "emails"}, catalog.Names())
}

func TestReadCampaignsPageNumberPagination(t *testing.T) {
	var pages []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/campaign/list-all", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "ws-1", r.URL.Query().Get("workspace_id"))

		page := r.URL.Query().Get("page")
		pages = append(pages, page)
		w.Header().Set("Content-Type", "application/json")

		// Two full pages of 2, then a short page ends pagination.
		switch page {
		case "1":
			_, _ = w.Write([]byte(`[{"id":"c1","modified_at":"2023-06-01T00:00:00Z"},{"id":"c2","modified_at":"2023-06-02T00:00:00Z"}]`))
		case "2":
			_, _ = w.Write([]byte(`[{"id":"c3","modified_at":"2023-06-03T00:00:00Z"},{"id":"c4","modified_at":"2023-06-04T00:00:00Z"}]`))
		default:
			_, _ = w.Write([]byte(`[{"id":"c5","modified_at":"2023-06-05T00:00:00Z"}]`))
		}
	}))
	defer server.Close()

	s := newTestSource(t, server.URL)
	stream, err := s.Read(context.Background(), "campaigns")
	require.NoError(t, err)

	records := drain(t, stream)
	assert.Len(t, records, 5)
	assert.Equal(t, []string{"1", "2", "3"}, pages)
}

func TestReadLeadsScopedByCampaign(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/campaign/list-all":
			_, _ = w.Write([]byte(`[{"id":"c1","modified_at":"2023-06-01T00:00:00Z"}]`))
		case "/lead/list":
			assert.Equal(t, "c1", r.URL.Query().Get("camp_id"))
			_, _ = w.Write([]byte(`{"data":[{"id":"l1","email":"a@example.com"}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	s := newTestSource(t, server.URL)
	stream, err := s.Read(context.Background(), "campaign_leads")
	require.NoError(t, err)

	records := drain(t, stream)
	require.Len(t, records, 1)

	campaignID, _ := records[0].GetData("campaign_id")
	assert.Equal(t, "c1", campaignID)
}

func TestWindowFilterNilForFullRefresh(t *testing.T) {
	s := newTestSource(t, "http://unused.invalid")

	leads, ok := s.catalog.Get("campaign_leads")
	require.True(t, ok)
	assert.Nil(t, s.windowFilter(leads), "non-incremental resources are not filtered")

	emails, ok := s.catalog.Get("emails")
	require.True(t, ok)
	assert.NotNil(t, s.windowFilter(emails))
}

func TestInitializeRequiresCredentials(t *testing.T) {
	cfg := config.NewBaseConfig("plusvibe", "source")
	cfg.Security.Credentials = map[string]string{"api_key": "k"}
	assert.Error(t, NewSource().Initialize(context.Background(), cfg), "workspace_id required")

	cfg = config.NewBaseConfig("plusvibe", "source")
	cfg.Security.Credentials = map[string]string{"workspace_id": "w"}
	assert.Error(t, NewSource().Initialize(context.Background(), cfg), "api_key required")
}
