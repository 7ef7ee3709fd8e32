package googlesheets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/comet/pkg/config"
	"github.com/ajitpratap0/comet/pkg/connector/core"
)

func TestResourceName(t *testing.T) {
	tests := []struct {
		a1Range string
		want    string
	}{
		{"Orders!A1:F", "orders"},
		{"Sheet1", "sheet1"},
		{"'Monthly Totals'!A:Z", "monthly_totals"},
		{"MixedCase!B2:D9", "mixedcase"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, resourceName(tt.a1Range))
	}
}

func TestBuildCatalog(t *testing.T) {
	catalog := buildCatalog("Orders!A1:F, Customers!A1:D", "")
	require.NoError(t, catalog.Validate())

	assert.Equal(t, []string{"orders", "customers"}, catalog.Names())
	for _, def := range catalog.Resources {
		assert.Equal(t, core.WriteReplace, def.WriteDisposition)
		assert.False(t, def.Incremental())
	}
}

func TestBuildCatalogIncremental(t *testing.T) {
	catalog := buildCatalog("Orders!A1:F", "updated_at")
	require.NoError(t, catalog.Validate())

	def, ok := catalog.Get("orders")
	require.True(t, ok)
	assert.True(t, def.Incremental())
	assert.Equal(t, "updated_at", def.IncrementalField)
}

func TestInitializeValidatesCredentials(t *testing.T) {
	tests := []struct {
		name  string
		creds map[string]string
	}{
		{"missing spreadsheet id", map[string]string{
			"ranges": "A!A1:B", "client_id": "c", "client_secret": "s", "refresh_token": "r",
		}},
		{"missing ranges", map[string]string{
			"spreadsheet_id": "sid", "client_id": "c", "client_secret": "s", "refresh_token": "r",
		}},
		{"missing oauth credentials", map[string]string{
			"spreadsheet_id": "sid", "ranges": "A!A1:B",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewBaseConfig("googlesheets", "source")
			cfg.Security.Credentials = tt.creds

			err := NewSource().Initialize(context.Background(), cfg)
			assert.Error(t, err)
		})
	}
}
