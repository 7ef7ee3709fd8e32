package snapchatads

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogDependencyChain(t *testing.T) {
	catalog := buildCatalog()
	require.NoError(t, catalog.Validate())

	assert.Equal(t, []string{"organizations", "ad_accounts", "campaigns", "campaign_stats"},
		catalog.Names())

	stats, ok := catalog.Get("campaign_stats")
	require.True(t, ok)
	assert.Equal(t, "campaigns", stats.Parent)
	assert.Equal(t, []string{"campaign_id", "ad_squad_id", "period", "step_index"}, stats.PrimaryKey)
	assert.Equal(t, []string{"ad_squad_id"}, stats.BreakdownFields)
}

func TestNextCursor(t *testing.T) {
	body := map[string]interface{}{
		"paging": map[string]interface{}{
			"next_link": "https://adsapi.snapchat.com/v1/me/organizations?cursor=abc123&limit=50",
		},
	}
	assert.Equal(t, "abc123", nextCursor(body))

	assert.Empty(t, nextCursor(map[string]interface{}{}))
	assert.Empty(t, nextCursor(map[string]interface{}{
		"paging": map[string]interface{}{},
	}))
	assert.Empty(t, nextCursor(map[string]interface{}{
		"paging": map[string]interface{}{"next_link": "://bad url"},
	}))
}

func TestFlattenSteps(t *testing.T) {
	entity := map[string]interface{}{
		"timeseries": []interface{}{
			map[string]interface{}{
				"start_time": "2023-01-01T00:00:00.000-00:00",
				"end_time":   "2023-01-02T00:00:00.000-00:00",
				"stats":      map[string]interface{}{"impressions": float64(100), "spend": float64(5)},
			},
			map[string]interface{}{
				"start_time": "2023-01-02T00:00:00.000-00:00",
				"end_time":   "2023-01-03T00:00:00.000-00:00",
				"stats":      map[string]interface{}{"impressions": float64(200), "spend": float64(7)},
			},
		},
	}

	rows := flattenSteps(entity, "DAY")
	require.Len(t, rows, 2)

	assert.Equal(t, 0, rows[0]["step_index"])
	assert.Equal(t, 1, rows[1]["step_index"])
	assert.Equal(t, "2023-01-01T00:00:00.000-00:00", rows[0]["period"])
	assert.Equal(t, float64(100), rows[0]["impressions"])
	assert.Equal(t, float64(7), rows[1]["spend"])
	assert.Equal(t, "DAY", rows[0]["granularity"])
}

func TestFlattenStepsNoSeries(t *testing.T) {
	assert.Empty(t, flattenSteps(map[string]interface{}{}, "DAY"))
}

func TestFlattenTimeseriesWithBreakdown(t *testing.T) {
	s := &Source{breakdown: "ad_squad", granularity: "DAY"}

	stat := map[string]interface{}{
		"id": "campaign-1",
		"breakdown_stats": map[string]interface{}{
			"ad_squad": []interface{}{
				map[string]interface{}{
					"id": "sq1",
					"timeseries": []interface{}{
						map[string]interface{}{
							"start_time": "2023-01-01T00:00:00.000-00:00",
							"stats":      map[string]interface{}{"impressions": float64(10)},
						},
					},
				},
				map[string]interface{}{
					"id": "sq2",
					"timeseries": []interface{}{
						map[string]interface{}{
							"start_time": "2023-01-01T00:00:00.000-00:00",
							"stats":      map[string]interface{}{"impressions": float64(20)},
						},
					},
				},
			},
		},
	}

	rows := s.flattenTimeseries(stat)
	require.Len(t, rows, 2)
	assert.Equal(t, "sq1", rows[0]["ad_squad_id"])
	assert.Equal(t, "sq2", rows[1]["ad_squad_id"])
	assert.Equal(t, float64(10), rows[0]["impressions"])
}

func TestFlattenTimeseriesWithoutBreakdown(t *testing.T) {
	s := &Source{breakdown: "ad_squad", granularity: "DAY"}

	stat := map[string]interface{}{
		"id": "campaign-1",
		"timeseries": []interface{}{
			map[string]interface{}{
				"start_time": "2023-01-01T00:00:00.000-00:00",
				"stats":      map[string]interface{}{"impressions": float64(10)},
			},
		},
	}

	rows := s.flattenTimeseries(stat)
	require.Len(t, rows, 1)

	// The breakdown id is present and explicitly null.
	val, ok := rows[0]["ad_squad_id"]
	require.True(t, ok)
	assert.Nil(t, val)
}
