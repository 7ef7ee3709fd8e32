package customerio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/comet/pkg/config"
	"github.com/ajitpratap0/comet/pkg/connector/core"
	"github.com/ajitpratap0/comet/pkg/models"
)

// epoch seconds for 2023-01-10T00:00:00Z
const recentTimestamp = 1673308800

func newTestServer(t *testing.T, hits map[string]*int) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	register := func(path, body string) {
		counter := new(int)
		hits[path] = counter
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			*counter++
			assert.NotEmpty(t, r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		})
	}

	// One stale campaign (updated in 1970) and one fresh one.
	register("/campaigns", `{
		"campaigns": [
			{"id": "c1", "name": "welcome", "updated": 1673308800},
			{"id": "c2", "name": "ancient", "updated": 1000}
		],
		"next": ""
	}`)
	register("/campaigns/c1/actions", `{
		"actions": [{"id": "a1", "type": "email", "updated": 1673308800}],
		"next": ""
	}`)
	register("/campaigns/c1/actions/a1/metrics", `{
		"metric": {"series": {"sent": [5, 7], "opened": [1, 2]}}
	}`)
	register("/newsletters", `{
		"newsletters": [{"id": "n1", "updated": 1673308800}],
		"next": ""
	}`)

	return httptest.NewServer(mux)
}

func newTestSource(t *testing.T, baseURL string) *Source {
	t.Helper()

	cfg := config.NewBaseConfig("customerio", "source")
	cfg.Extraction.BaseURL = baseURL
	cfg.Extraction.StartDate = "2023-01-01T00:00:00Z"
	cfg.Security.AuthType = "api_key"
	cfg.Security.Credentials = map[string]string{"api_key": "test-key"}
	cfg.Reliability.CircuitBreaker = false
	cfg.Reliability.RetryDelay = time.Millisecond

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

func TestDiscoverCatalog(t *testing.T) {
	hits := map[string]*int{}
	server := newTestServer(t, hits)
	defer server.Close()

	s := newTestSource(t, server.URL)
	catalog, err := s.Discover(context.Background())
	require.NoError(t, err)
	require.NoError(t, catalog.Validate())

	assert.Equal(t, []string{
		"campaigns", "campaign_actions", "campaign_action_metrics",
		"newsletters", "broadcasts", "broadcast_actions",
	}, catalog.Names())

	metrics, ok := catalog.Get("campaign_action_metrics")
	require.True(t, ok)
	assert.Equal(t, []string{"campaign_id", "action_id", "period", "step_index"}, metrics.PrimaryKey)
	assert.Equal(t, core.WriteMerge, metrics.WriteDisposition)
}

func TestReadCampaignsAppliesWindow(t *testing.T) {
	hits := map[string]*int{}
	server := newTestServer(t, hits)
	defer server.Close()

	s := newTestSource(t, server.URL)
	stream, err := s.Read(context.Background(), "campaigns")
	require.NoError(t, err)

	records := drain(t, stream)
	require.Len(t, records, 1, "stale campaign is outside the window")

	id, _ := records[0].GetData("id")
	assert.Equal(t, "c1", id)
	assert.Equal(t, "campaigns", records[0].Metadata.Resource)
	assert.Equal(t, "customerio", records[0].Metadata.Source)
}

func TestReadCampaignActionsInjectsJoinField(t *testing.T) {
	hits := map[string]*int{}
	server := newTestServer(t, hits)
	defer server.Close()

	s := newTestSource(t, server.URL)
	stream, err := s.Read(context.Background(), "campaign_actions")
	require.NoError(t, err)

	records := drain(t, stream)
	require.Len(t, records, 1)

	campaignID, _ := records[0].GetData("campaign_id")
	assert.Equal(t, "c1", campaignID)
	actionID, _ := records[0].GetData("id")
	assert.Equal(t, "a1", actionID)
}

func TestReadActionMetricsEmitsPerStep(t *testing.T) {
	hits := map[string]*int{}
	server := newTestServer(t, hits)
	defer server.Close()

	s := newTestSource(t, server.URL)
	stream, err := s.Read(context.Background(), "campaign_action_metrics")
	require.NoError(t, err)

	records := drain(t, stream)
	require.Len(t, records, 2, "one record per step index")

	for i, record := range records {
		campaignID, _ := record.GetData("campaign_id")
		assert.Equal(t, "c1", campaignID)
		actionID, _ := record.GetData("action_id")
		assert.Equal(t, "a1", actionID)
		period, _ := record.GetData("period")
		assert.Equal(t, "days", period)
		stepIndex, _ := record.GetData("step_index")
		assert.Equal(t, i, stepIndex)
	}

	sent, _ := records[0].GetData("sent")
	assert.Equal(t, float64(5), sent)
	sent, _ = records[1].GetData("sent")
	assert.Equal(t, float64(7), sent)
}

func TestParentsFetchedOncePerRun(t *testing.T) {
	hits := map[string]*int{}
	server := newTestServer(t, hits)
	defer server.Close()

	s := newTestSource(t, server.URL)
	ctx := context.Background()

	for _, resource := range []string{"campaigns", "campaign_actions", "campaign_action_metrics"} {
		stream, err := s.Read(ctx, resource)
		require.NoError(t, err)
		drain(t, stream)
	}

	assert.Equal(t, 1, *hits["/campaigns"], "campaign list fetched exactly once per run")
}

func TestPageFetchRetriesServerErrors(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			http.Error(w, "upstream hiccup", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"campaigns": [{"id": "c1", "updated": 1673308800}],
			"next": ""
		}`))
	}))
	defer server.Close()

	s := newTestSource(t, server.URL)
	stream, err := s.Read(context.Background(), "campaigns")
	require.NoError(t, err)

	records := drain(t, stream)
	require.Len(t, records, 1, "page succeeds after a retried 500")
	assert.Equal(t, 2, attempts)
}

func TestPageFetchSurfacesExhaustedServerErrors(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	s := newTestSource(t, server.URL)
	stream, err := s.Read(context.Background(), "campaigns")
	require.NoError(t, err)

	for range stream.Records {
	}
	err = <-stream.Errors
	require.Error(t, err)
	assert.Equal(t, 3, attempts, "bounded by the configured attempt count")
}

func TestReadUnknownResource(t *testing.T) {
	hits := map[string]*int{}
	server := newTestServer(t, hits)
	defer server.Close()

	s := newTestSource(t, server.URL)
	_, err := s.Read(context.Background(), "nonexistent")
	assert.Error(t, err)
}

func TestStateCursorAdvances(t *testing.T) {
	hits := map[string]*int{}
	server := newTestServer(t, hits)
	defer server.Close()

	s := newTestSource(t, server.URL)
	stream, err := s.Read(context.Background(), "campaigns")
	require.NoError(t, err)
	drain(t, stream)

	cursor, ok := s.GetState().Cursor("campaigns")
	require.True(t, ok)
	assert.Equal(t, int64(recentTimestamp), cursor.Unix())
}

func TestInitializeRequiresCredentials(t *testing.T) {
	cfg := config.NewBaseConfig("customerio", "source")
	cfg.Security.AuthType = "api_key"

	err := NewSource().Initialize(context.Background(), cfg)
	assert.Error(t, err)
}

func TestInitializeRejectsBadPeriod(t *testing.T) {
	cfg := config.NewBaseConfig("customerio", "source")
	cfg.Extraction.Period = "fortnights"
	cfg.Security.AuthType = "api_key"
	cfg.Security.Credentials = map[string]string{"api_key": "k"}

	err := NewSource().Initialize(context.Background(), cfg)
	assert.Error(t, err)
}
