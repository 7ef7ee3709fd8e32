// Package snapchatads implements the Snapchat Marketing API source
// connector. It walks the organization, ad account and campaign
// hierarchy and extracts per-period campaign stats with an optional
// ad-squad breakdown.
package snapchatads

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/comet/pkg/auth"
	"github.com/ajitpratap0/comet/pkg/clients"
	"github.com/ajitpratap0/comet/pkg/config"
	"github.com/ajitpratap0/comet/pkg/connector/base"
	"github.com/ajitpratap0/comet/pkg/connector/core"
	"github.com/ajitpratap0/comet/pkg/connector/sdk"
	"github.com/ajitpratap0/comet/pkg/errors"
	"github.com/ajitpratap0/comet/pkg/models"
)

const (
	defaultBaseURL = "https://adsapi.snapchat.com/v1"
	tokenURL       = "https://accounts.snapchat.com/login/oauth2/access_token"

	defaultGranularity = "DAY"
	defaultBreakdown   = "ad_squad"
)

// Source extracts data from the Snapchat Marketing API.
type Source struct {
	*base.BaseConnector

	client      *clients.RESTClient
	authn       *auth.OAuth2RefreshAuthenticator
	baseURL     string
	granularity string
	breakdown   string

	catalog     *core.Catalog
	parentCache map[string][]map[string]interface{}
}

// NewSource creates an uninitialized Snapchat Ads source.
func NewSource() *Source {
	return &Source{
		BaseConnector: base.NewBaseConnector("snapchatads", "1.0.0"),
		parentCache:   make(map[string][]map[string]interface{}),
	}
}

// Initialize validates credentials and builds the HTTP client.
func (s *Source) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := s.BaseConnector.Initialize(ctx, cfg); err != nil {
		return err
	}

	creds := cfg.Security.Credentials
	authn, err := auth.NewOAuth2RefreshAuthenticator(
		tokenURL,
		creds["client_id"],
		creds["client_secret"],
		creds["refresh_token"],
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "snapchat credentials invalid")
	}
	s.authn = authn

	s.baseURL = strings.TrimSuffix(cfg.Extraction.BaseURL, "/")
	if s.baseURL == "" {
		s.baseURL = defaultBaseURL
	}

	s.granularity = cfg.Extraction.Period
	if s.granularity == "" {
		s.granularity = defaultGranularity
	}
	s.breakdown = cfg.Extraction.Breakdown
	if s.breakdown == "" {
		s.breakdown = defaultBreakdown
	}

	s.client = clients.NewRESTClient("snapchatads", cfg)
	s.catalog = buildCatalog()
	if err := s.catalog.Validate(); err != nil {
		return err
	}

	s.Logger.Info("snapchatads source initialized",
		zap.String("base_url", s.baseURL),
		zap.String("granularity", s.granularity),
		zap.String("breakdown", s.breakdown))
	return nil
}

func buildCatalog() *core.Catalog {
	return &core.Catalog{Resources: []*core.ResourceDef{
		{
			Name:             "organizations",
			PrimaryKey:       []string{"id"},
			WriteDisposition: core.WriteMerge,
		},
		{
			Name:             "ad_accounts",
			PrimaryKey:       []string{"id"},
			WriteDisposition: core.WriteMerge,
			Parent:           "organizations",
			JoinField:        "organization_id",
		},
		{
			Name:             "campaigns",
			PrimaryKey:       []string{"id"},
			WriteDisposition: core.WriteMerge,
			Parent:           "ad_accounts",
			JoinField:        "ad_account_id",
			IncrementalField: "updated_at",
		},
		{
			Name:             "campaign_stats",
			PrimaryKey:       []string{"campaign_id", "ad_squad_id", "period", "step_index"},
			WriteDisposition: core.WriteMerge,
			Parent:           "campaigns",
			JoinField:        "campaign_id",
			BreakdownFields:  []string{"ad_squad_id"},
		},
	}}
}

// Discover returns the resource catalog.
func (s *Source) Discover(_ context.Context) (*core.Catalog, error) {
	return s.catalog, nil
}

// ForceReauth discards the cached access token. Callers that observe
// a 401 mid-run can use it before retrying a resource.
func (s *Source) ForceReauth(ctx context.Context) error {
	return s.authn.ForceRefresh(ctx)
}

// Read streams one resource.
func (s *Source) Read(ctx context.Context, resource string) (*core.RecordStream, error) {
	def, ok := s.catalog.Get(resource)
	if !ok {
		return nil, errors.New(errors.ErrorTypeValidation,
			fmt.Sprintf("unknown resource %q", resource))
	}

	stream := core.NewRecordStream(s.Config.Performance.BufferSize)

	go func() {
		defer stream.Close()

		var err error
		switch def.Name {
		case "organizations":
			err = s.readOrganizations(ctx, def, stream)
		case "ad_accounts":
			err = s.readAdAccounts(ctx, def, stream)
		case "campaigns":
			err = s.readCampaigns(ctx, def, stream)
		case "campaign_stats":
			err = s.readCampaignStats(ctx, def, stream)
		}

		if err != nil {
			stream.Errors <- err
		}
	}()

	return stream, nil
}

func (s *Source) readOrganizations(ctx context.Context, def *core.ResourceDef, stream *core.RecordStream) error {
	orgs, err := s.fetchOrganizations(ctx)
	if err != nil {
		return err
	}
	for _, org := range orgs {
		s.emit(def, org, stream)
	}
	return nil
}

func (s *Source) readAdAccounts(ctx context.Context, def *core.ResourceDef, stream *core.RecordStream) error {
	accounts, err := s.fetchAdAccounts(ctx, def)
	if err != nil {
		return err
	}
	for _, acct := range accounts {
		s.emit(def, acct, stream)
	}
	return nil
}

func (s *Source) readCampaigns(ctx context.Context, def *core.ResourceDef, stream *core.RecordStream) error {
	campaigns, err := s.fetchCampaigns(ctx, def)
	if err != nil {
		return err
	}
	for _, c := range campaigns {
		s.emit(def, c, stream)
	}
	return nil
}

// readCampaignStats fetches one stats call per campaign and explodes
// the optional ad-squad breakdown so every emitted row carries the
// same key shape.
func (s *Source) readCampaignStats(ctx context.Context, def *core.ResourceDef, stream *core.RecordStream) error {
	campaignsDef, _ := s.catalog.Get("campaigns")
	campaigns, err := s.fetchCampaigns(ctx, campaignsDef)
	if err != nil {
		return err
	}

	resolver := &sdk.Resolver{
		JoinField: def.JoinField,
		Fetch:     s.fetchStatsRows,
		OnSkip: func(map[string]interface{}) {
			s.Collector.RecordParentSkipped(def.Name)
		},
	}

	return resolver.ResolveAll(ctx, campaigns, func(row map[string]interface{}) error {
		sdk.NormalizeKeys([]map[string]interface{}{row}, def.PrimaryKey)
		s.emit(def, row, stream)
		return nil
	})
}

// fetchStatsRows requests the stats timeseries for one campaign and
// flattens it into one row per period step, per breakdown entry when
// a breakdown is present.
func (s *Source) fetchStatsRows(ctx context.Context, campaignID string) ([]map[string]interface{}, error) {
	params := url.Values{
		"granularity": {s.granularity},
		"breakdown":   {s.breakdown},
	}
	start, _ := s.Config.Window()
	params.Set("start_time", start.Format("2006-01-02T15:04:05.000-07:00"))
	if end := s.Config.WindowEnd(); end != nil {
		params.Set("end_time", end.Format("2006-01-02T15:04:05.000-07:00"))
	}

	var body map[string]interface{}
	path := fmt.Sprintf("/campaigns/%s/stats", campaignID)
	if err := s.getJSON(ctx, path, params, &body); err != nil {
		return nil, err
	}
	if err := sdk.CheckRequestStatus(body, "request_status"); err != nil {
		return nil, err
	}

	stats, err := s.unwrapEntities(body, "timeseries_stats", "timeseries_stat")
	if err != nil {
		return nil, err
	}

	var rows []map[string]interface{}
	for _, stat := range stats {
		rows = append(rows, s.flattenTimeseries(stat)...)
	}
	return rows, nil
}

// flattenTimeseries converts one timeseries_stat entity into flat
// rows. With a breakdown, each breakdown entry's own timeseries is
// flattened; without one, the top-level timeseries is used and the
// breakdown id is explicitly nulled.
func (s *Source) flattenTimeseries(stat map[string]interface{}) []map[string]interface{} {
	idField := sdk.JoinFieldFor(s.breakdown)

	// Hoist the breakdown entry list next to the base fields so each
	// entry's own timeseries shadows the campaign-level one.
	base := stat
	if breakdown, ok := stat["breakdown_stats"].(map[string]interface{}); ok {
		base = make(map[string]interface{}, len(stat))
		for k, v := range stat {
			if k != "breakdown_stats" {
				base[k] = v
			}
		}
		base[s.breakdown] = breakdown[s.breakdown]
	}

	var rows []map[string]interface{}
	for _, entry := range sdk.ExplodeBreakdown(base, s.breakdown, idField) {
		id := entry[idField]
		for _, row := range flattenSteps(entry, s.granularity) {
			row[idField] = id
			rows = append(rows, row)
		}
	}
	return rows
}

// flattenSteps converts an entity's "timeseries" array into one row
// per step index, merging the per-step stats object.
func flattenSteps(entity map[string]interface{}, granularity string) []map[string]interface{} {
	series, ok := entity["timeseries"].([]interface{})
	if !ok {
		return nil
	}

	rows := make([]map[string]interface{}, 0, len(series))
	for i, raw := range series {
		step, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}

		row := map[string]interface{}{
			"period":      step["start_time"],
			"end_time":    step["end_time"],
			"step_index":  i,
			"granularity": granularity,
		}
		if stats, ok := step["stats"].(map[string]interface{}); ok {
			for k, v := range stats {
				row[k] = v
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func (s *Source) fetchOrganizations(ctx context.Context) ([]map[string]interface{}, error) {
	if cached, ok := s.parentCache["organizations"]; ok {
		return cached, nil
	}

	orgs, err := s.fetchHierarchy(ctx, "/me/organizations", "organizations", "organization")
	if err != nil {
		return nil, err
	}
	s.parentCache["organizations"] = orgs
	return orgs, nil
}

func (s *Source) fetchAdAccounts(ctx context.Context, def *core.ResourceDef) ([]map[string]interface{}, error) {
	if cached, ok := s.parentCache[def.Name]; ok {
		return cached, nil
	}

	orgs, err := s.fetchOrganizations(ctx)
	if err != nil {
		return nil, err
	}

	var accounts []map[string]interface{}
	resolver := &sdk.Resolver{
		JoinField: def.JoinField,
		Fetch: func(ctx context.Context, orgID string) ([]map[string]interface{}, error) {
			return s.fetchHierarchy(ctx, fmt.Sprintf("/organizations/%s/adaccounts", orgID), "adaccounts", "adaccount")
		},
		OnSkip: func(map[string]interface{}) {
			s.Collector.RecordParentSkipped(def.Name)
		},
	}
	err = resolver.ResolveAll(ctx, orgs, func(acct map[string]interface{}) error {
		accounts = append(accounts, acct)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.parentCache[def.Name] = accounts
	return accounts, nil
}

func (s *Source) fetchCampaigns(ctx context.Context, def *core.ResourceDef) ([]map[string]interface{}, error) {
	if cached, ok := s.parentCache[def.Name]; ok {
		return cached, nil
	}

	adAccountsDef, _ := s.catalog.Get("ad_accounts")
	accounts, err := s.fetchAdAccounts(ctx, adAccountsDef)
	if err != nil {
		return nil, err
	}

	var campaigns []map[string]interface{}
	resolver := &sdk.Resolver{
		JoinField: def.JoinField,
		Fetch: func(ctx context.Context, accountID string) ([]map[string]interface{}, error) {
			return s.fetchHierarchy(ctx, fmt.Sprintf("/adaccounts/%s/campaigns", accountID), "campaigns", "campaign")
		},
		OnSkip: func(map[string]interface{}) {
			s.Collector.RecordParentSkipped(def.Name)
		},
	}
	err = resolver.ResolveAll(ctx, accounts, func(c map[string]interface{}) error {
		campaigns = append(campaigns, c)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if filter := s.windowFilter(def); filter != nil {
		campaigns, err = filter.Apply(campaigns)
		if err != nil {
			return nil, err
		}
	}

	s.parentCache[def.Name] = campaigns
	return campaigns, nil
}

// fetchHierarchy paginates one hierarchy endpoint. Snapchat wraps
// each entity in a per-item status envelope and carries the next
// cursor inside paging.next_link as a full URL.
func (s *Source) fetchHierarchy(ctx context.Context, path, listKey, entityKey string) ([]map[string]interface{}, error) {
	paginator := &sdk.Paginator{
		Strategy: &sdk.CursorStrategy{Param: "cursor"},
		Fetch: func(ctx context.Context, params url.Values) (*sdk.Page, error) {
			var body map[string]interface{}
			if err := s.getJSON(ctx, path, params, &body); err != nil {
				return nil, err
			}
			if err := sdk.CheckRequestStatus(body, "request_status"); err != nil {
				return nil, err
			}

			items, err := s.unwrapEntities(body, listKey, entityKey)
			if err != nil {
				return nil, err
			}

			return &sdk.Page{Items: items, NextCursor: nextCursor(body), Total: -1}, nil
		},
	}

	params := url.Values{"limit": {fmt.Sprintf("%d", s.Config.Performance.BatchSize)}}
	return paginator.Collect(ctx, params)
}

// unwrapEntities flattens Snapchat's per-item envelopes. An item
// whose sub_request_status is not SUCCESS is skipped; the rest of the
// batch is kept.
func (s *Source) unwrapEntities(body map[string]interface{}, listKey, entityKey string) ([]map[string]interface{}, error) {
	wrapped, err := sdk.NormalizeEnvelope(body, listKey)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]interface{}, 0, len(wrapped))
	for _, w := range wrapped {
		if status, ok := w["sub_request_status"].(string); ok && !strings.EqualFold(status, "SUCCESS") {
			s.Logger.Warn("skipping entity with failed sub request",
				zap.String("list", listKey), zap.String("status", status))
			continue
		}
		entity, ok := w[entityKey].(map[string]interface{})
		if !ok {
			return nil, errors.New(errors.ErrorTypeData,
				fmt.Sprintf("item missing %q entity", entityKey))
		}
		items = append(items, entity)
	}
	return items, nil
}

// nextCursor extracts the cursor query parameter from the full
// next_link URL Snapchat returns.
func nextCursor(body map[string]interface{}) string {
	paging, ok := body["paging"].(map[string]interface{})
	if !ok {
		return ""
	}
	link, _ := paging["next_link"].(string)
	if link == "" {
		return ""
	}
	parsed, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return parsed.Query().Get("cursor")
}

func (s *Source) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	headers, err := s.authn.Headers(ctx)
	if err != nil {
		return err
	}
	return s.client.GetJSON(ctx, s.baseURL+path, headers, params, out)
}

// windowFilter builds the incremental filter for a resource.
// Snapchat timestamps are ISO strings.
func (s *Source) windowFilter(def *core.ResourceDef) *sdk.WindowFilter {
	if !def.Incremental() {
		return nil
	}

	start, _ := s.Config.Window()
	if cursor, ok := s.GetState().Cursor(def.Name); ok && cursor.After(start) {
		start = cursor
	}

	return &sdk.WindowFilter{
		Field:   def.IncrementalField,
		Numbers: sdk.NumberEpochSeconds,
		Window:  sdk.Window{Last: start, End: s.Config.WindowEnd()},
	}
}

func (s *Source) emit(def *core.ResourceDef, item map[string]interface{}, stream *core.RecordStream) {
	record := models.NewRecord("snapchatads")
	for k, v := range item {
		record.SetData(k, v)
	}
	record.Metadata.Resource = def.Name

	if def.Incremental() {
		if t, err := sdk.ParseInstant(item[def.IncrementalField], sdk.NumberEpochSeconds); err == nil {
			s.AdvanceCursor(def.Name, t)
		}
	}

	s.Collector.RecordExtracted(def.Name)
	stream.Records <- record
}

// Close releases the connector's resources.
func (s *Source) Close(ctx context.Context) error {
	s.parentCache = make(map[string][]map[string]interface{})
	return s.BaseConnector.Close(ctx)
}
