// Package plusvibe implements the PlusVibeAI source connector. The
// API uses 1-based page-number pagination and API-key authentication.
package plusvibe

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

const defaultBaseURL = "https://api.plusvibe.ai/api/v1"

// Source extracts campaigns, leads and sent emails from PlusVibeAI.
type Source struct {
	*base.BaseConnector

	client      *clients.RESTClient
	authn       auth.Authenticator
	baseURL     string
	workspaceID string

	catalog     *core.Catalog
	parentCache map[string][]map[string]interface{}
}

// NewSource creates an uninitialized PlusVibeAI source.
func NewSource() *Source {
	return &Source{
		BaseConnector: base.NewBaseConnector("plusvibe", "1.0.0"),
		parentCache:   make(map[string][]map[string]interface{}),
	}
}

// Initialize validates credentials and builds the HTTP client.
func (s *Source) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := s.BaseConnector.Initialize(ctx, cfg); err != nil {
		return err
	}

	key := cfg.Security.Credentials["api_key"]
	if key == "" {
		return errors.New(errors.ErrorTypeConfig, "plusvibe api_key is required")
	}
	authn, err := auth.NewAPIKeyAuthenticator("x-api-key", key)
	if err != nil {
		return err
	}
	s.authn = authn

	s.workspaceID = cfg.Security.Credentials["workspace_id"]
	if s.workspaceID == "" {
		return errors.New(errors.ErrorTypeConfig, "plusvibe workspace_id is required")
	}

	s.baseURL = strings.TrimSuffix(cfg.Extraction.BaseURL, "/")
	if s.baseURL == "" {
		s.baseURL = defaultBaseURL
	}

	s.client = clients.NewRESTClient("plusvibe", cfg)
	s.catalog = buildCatalog()
	if err := s.catalog.Validate(); err != nil {
		return err
	}

	s.Logger.Info("plusvibe source initialized", zap.String("base_url", s.baseURL))
	return nil
}

func buildCatalog() *core.Catalog {
	return &core.Catalog{Resources: []*core.ResourceDef{
		{
			Name:             "campaigns",
			PrimaryKey:       []string{"id"},
			WriteDisposition: core.WriteMerge,
			IncrementalField: "modified_at",
		},
		{
			Name:             "campaign_leads",
			PrimaryKey:       []string{"id"},
			WriteDisposition: core.WriteMerge,
			Parent:           "campaigns",
			JoinField:        "campaign_id",
		},
		{
			Name:             "emails",
			PrimaryKey:       []string{"id"},
			WriteDisposition: core.WriteMerge,
			IncrementalField: "timestamp_created",
		},
	}}
}

// Discover returns the resource catalog.
func (s *Source) Discover(_ context.Context) (*core.Catalog, error) {
	return s.catalog, nil
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
		case "campaigns":
			err = s.readCampaigns(ctx, def, stream)
		case "campaign_leads":
			err = s.readLeads(ctx, def, stream)
		case "emails":
			err = s.readEmails(ctx, def, stream)
		}

		if err != nil {
			stream.Errors <- err
		}
	}()

	return stream, nil
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

func (s *Source) readLeads(ctx context.Context, def *core.ResourceDef, stream *core.RecordStream) error {
	campaignsDef, _ := s.catalog.Get("campaigns")
	campaigns, err := s.fetchCampaigns(ctx, campaignsDef)
	if err != nil {
		return err
	}

	resolver := &sdk.Resolver{
		JoinField: def.JoinField,
		Fetch: func(ctx context.Context, campaignID string) ([]map[string]interface{}, error) {
			params := url.Values{"camp_id": {campaignID}}
			return s.fetchPaged(ctx, "/lead/list", params)
		},
		OnSkip: func(map[string]interface{}) {
			s.Collector.RecordParentSkipped(def.Name)
		},
	}

	return resolver.ResolveAll(ctx, campaigns, func(lead map[string]interface{}) error {
		s.emit(def, lead, stream)
		return nil
	})
}

func (s *Source) readEmails(ctx context.Context, def *core.ResourceDef, stream *core.RecordStream) error {
	items, err := s.fetchPaged(ctx, "/unibox/emails", url.Values{})
	if err != nil {
		return err
	}

	if filter := s.windowFilter(def); filter != nil {
		items, err = filter.Apply(items)
		if err != nil {
			return err
		}
	}
	for _, item := range items {
		s.emit(def, item, stream)
	}
	return nil
}

func (s *Source) fetchCampaigns(ctx context.Context, def *core.ResourceDef) ([]map[string]interface{}, error) {
	if cached, ok := s.parentCache[def.Name]; ok {
		return cached, nil
	}

	items, err := s.fetchPaged(ctx, "/campaign/list-all", url.Values{})
	if err != nil {
		return nil, err
	}

	if filter := s.windowFilter(def); filter != nil {
		items, err = filter.Apply(items)
		if err != nil {
			return nil, err
		}
	}

	s.parentCache[def.Name] = items
	return items, nil
}

// fetchPaged walks a page-number endpoint. Responses arrive either as
// a bare array or wrapped in a "data" envelope.
func (s *Source) fetchPaged(ctx context.Context, path string, extra url.Values) ([]map[string]interface{}, error) {
	paginator := &sdk.Paginator{
		Strategy: &sdk.PageNumberStrategy{
			PageParam:  "page",
			LimitParam: "limit",
			Limit:      s.Config.Performance.BatchSize,
		},
		Fetch: func(ctx context.Context, params url.Values) (*sdk.Page, error) {
			var body interface{}
			if err := s.getJSON(ctx, path, params, &body); err != nil {
				return nil, err
			}

			items, err := sdk.NormalizeEnvelope(body, "data")
			if err != nil {
				return nil, err
			}
			return &sdk.Page{Items: items, Total: -1}, nil
		},
	}

	params := url.Values{"workspace_id": {s.workspaceID}}
	for k, vals := range extra {
		params[k] = vals
	}
	return paginator.Collect(ctx, params)
}

func (s *Source) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	headers, err := s.authn.Headers(ctx)
	if err != nil {
		return err
	}
	return s.client.GetJSON(ctx, s.baseURL+path, headers, params, out)
}

// windowFilter builds the incremental filter for a resource, or nil
// for full-refresh resources. PlusVibeAI timestamps are ISO strings.
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
	record := models.NewRecord("plusvibe")
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
