// Package customerio implements the Customer.io Beta API source
// connector. It extracts campaigns, newsletters and broadcasts along
// with their nested actions and per-step delivery metrics.
package customerio

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
	defaultBaseURL = "https://api.customer.io/v1"
	defaultPeriod  = "days"
)

// defaultSteps is the number of reporting steps requested per period
// granularity when the configuration does not override it.
var defaultSteps = map[string]int{
	"hours":  24,
	"days":   45,
	"weeks":  12,
	"months": 12,
}

// Source extracts data from the Customer.io Beta API.
type Source struct {
	*base.BaseConnector

	client  *clients.RESTClient
	authn   auth.Authenticator
	baseURL string
	period  string
	steps   int

	catalog *core.Catalog

	// parentCache holds filtered parent streams already fetched this
	// run, so each parent collection is fetched at most once even
	// when several child resources depend on it.
	parentCache map[string][]map[string]interface{}
}

// NewSource creates an uninitialized Customer.io source.
func NewSource() *Source {
	return &Source{
		BaseConnector: base.NewBaseConnector("customerio", "1.0.0"),
		parentCache:   make(map[string][]map[string]interface{}),
	}
}

// Initialize validates credentials and builds the HTTP client.
func (s *Source) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := s.BaseConnector.Initialize(ctx, cfg); err != nil {
		return err
	}

	authn, err := auth.FromCredentials(cfg.Security.AuthType, cfg.Security.Credentials)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "customerio credentials invalid")
	}
	s.authn = authn

	s.baseURL = strings.TrimSuffix(cfg.Extraction.BaseURL, "/")
	if s.baseURL == "" {
		s.baseURL = defaultBaseURL
	}

	s.period = cfg.Extraction.Period
	if s.period == "" {
		s.period = defaultPeriod
	}
	steps, ok := defaultSteps[s.period]
	if !ok {
		return errors.New(errors.ErrorTypeConfig,
			fmt.Sprintf("unsupported period %q", s.period))
	}
	s.steps = steps

	s.client = clients.NewRESTClient("customerio", cfg)
	s.catalog = buildCatalog()
	if err := s.catalog.Validate(); err != nil {
		return err
	}

	s.RegisterHealthProbe("api", func(ctx context.Context) error {
		var body map[string]interface{}
		return s.getJSON(ctx, "/campaigns", url.Values{"limit": {"1"}}, &body)
	})

	s.Logger.Info("customerio source initialized",
		zap.String("base_url", s.baseURL),
		zap.String("period", s.period))
	return nil
}

func buildCatalog() *core.Catalog {
	return &core.Catalog{Resources: []*core.ResourceDef{
		{
			Name:             "campaigns",
			PrimaryKey:       []string{"id"},
			WriteDisposition: core.WriteMerge,
			IncrementalField: "updated",
		},
		{
			Name:             "campaign_actions",
			PrimaryKey:       []string{"id"},
			WriteDisposition: core.WriteMerge,
			Parent:           "campaigns",
			JoinField:        "campaign_id",
			IncrementalField: "updated",
		},
		{
			Name:             "campaign_action_metrics",
			PrimaryKey:       []string{"campaign_id", "action_id", "period", "step_index"},
			WriteDisposition: core.WriteMerge,
			Parent:           "campaign_actions",
			JoinField:        "action_id",
		},
		{
			Name:             "newsletters",
			PrimaryKey:       []string{"id"},
			WriteDisposition: core.WriteMerge,
			IncrementalField: "updated",
		},
		{
			Name:             "broadcasts",
			PrimaryKey:       []string{"id"},
			WriteDisposition: core.WriteMerge,
			IncrementalField: "updated",
		},
		{
			Name:             "broadcast_actions",
			PrimaryKey:       []string{"id"},
			WriteDisposition: core.WriteMerge,
			Parent:           "broadcasts",
			JoinField:        "broadcast_id",
		},
	}}
}

// Discover returns the resource catalog.
func (s *Source) Discover(_ context.Context) (*core.Catalog, error) {
	return s.catalog, nil
}

// Read streams one resource. Extraction runs in a single goroutine;
// the stream closes when the resource is drained or fails.
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
		case "campaigns", "newsletters", "broadcasts":
			err = s.readCollection(ctx, def, stream)
		case "campaign_actions":
			err = s.readActions(ctx, def, "campaigns", "campaigns", stream)
		case "broadcast_actions":
			err = s.readActions(ctx, def, "broadcasts", "broadcasts", stream)
		case "campaign_action_metrics":
			err = s.readActionMetrics(ctx, def, stream)
		}

		if err != nil {
			stream.Errors <- err
		}
	}()

	return stream, nil
}

// readCollection extracts a top-level cursor-paginated collection,
// applying the incremental window filter.
func (s *Source) readCollection(ctx context.Context, def *core.ResourceDef, stream *core.RecordStream) error {
	items, err := s.fetchParents(ctx, def)
	if err != nil {
		return err
	}

	for _, item := range items {
		s.emit(def, item, stream)
	}
	return nil
}

// readActions fans a parent collection out into its nested actions.
func (s *Source) readActions(ctx context.Context, def *core.ResourceDef, parentName, parentPath string, stream *core.RecordStream) error {
	parentDef, _ := s.catalog.Get(parentName)
	parents, err := s.fetchParents(ctx, parentDef)
	if err != nil {
		return err
	}

	filter := s.windowFilter(def)
	resolver := &sdk.Resolver{
		JoinField: def.JoinField,
		IDFields:  []string{"cio_id", "id"},
		Fetch: func(ctx context.Context, parentID string) ([]map[string]interface{}, error) {
			return s.fetchList(ctx, fmt.Sprintf("/%s/%s/actions", parentPath, parentID), "actions")
		},
		OnSkip: func(map[string]interface{}) {
			s.Collector.RecordParentSkipped(def.Name)
		},
	}

	return resolver.ResolveAll(ctx, parents, func(child map[string]interface{}) error {
		if filter != nil {
			if _, ok, err := filter.Accept(child); err != nil || !ok {
				return err
			}
		}
		s.emit(def, child, stream)
		return nil
	})
}

// readActionMetrics walks campaigns, then each campaign's actions,
// then each action's per-step metric series. One metric record is
// emitted per step index.
func (s *Source) readActionMetrics(ctx context.Context, def *core.ResourceDef, stream *core.RecordStream) error {
	campaignsDef, _ := s.catalog.Get("campaigns")
	campaigns, err := s.fetchParents(ctx, campaignsDef)
	if err != nil {
		return err
	}

	campaignResolver := &sdk.Resolver{
		JoinField: "campaign_id",
		IDFields:  []string{"cio_id", "id"},
		Fetch: func(ctx context.Context, campaignID string) ([]map[string]interface{}, error) {
			return s.fetchList(ctx, fmt.Sprintf("/campaigns/%s/actions", campaignID), "actions")
		},
		OnSkip: func(map[string]interface{}) {
			s.Collector.RecordParentSkipped(def.Name)
		},
	}

	return campaignResolver.ResolveAll(ctx, campaigns, func(action map[string]interface{}) error {
		actionResolver := &sdk.Resolver{
			JoinField: "action_id",
			IDFields:  []string{"cio_id", "id"},
			Fetch: func(ctx context.Context, actionID string) ([]map[string]interface{}, error) {
				campaignID, _ := action["campaign_id"].(string)
				return s.fetchActionMetrics(ctx, campaignID, actionID)
			},
			OnSkip: func(map[string]interface{}) {
				s.Collector.RecordParentSkipped(def.Name)
			},
		}

		return actionResolver.Resolve(ctx, action, func(metric map[string]interface{}) error {
			metric["campaign_id"] = action["campaign_id"]
			sdk.NormalizeKeys([]map[string]interface{}{metric}, def.PrimaryKey)
			s.emit(def, metric, stream)
			return nil
		})
	})
}

// fetchActionMetrics requests the metric series for one action and
// flattens it into one row per step index.
func (s *Source) fetchActionMetrics(ctx context.Context, campaignID, actionID string) ([]map[string]interface{}, error) {
	params := url.Values{
		"period": {s.period},
		"steps":  {fmt.Sprintf("%d", s.steps)},
	}

	var body map[string]interface{}
	path := fmt.Sprintf("/campaigns/%s/actions/%s/metrics", campaignID, actionID)
	if err := s.getJSON(ctx, path, params, &body); err != nil {
		return nil, err
	}

	metric, _ := body["metric"].(map[string]interface{})
	series, _ := metric["series"].(map[string]interface{})
	if len(series) == 0 {
		return nil, nil
	}

	rows := make([]map[string]interface{}, s.steps)
	for name, raw := range series {
		values, ok := raw.([]interface{})
		if !ok {
			continue
		}
		for i, v := range values {
			if i >= s.steps {
				break
			}
			if rows[i] == nil {
				rows[i] = map[string]interface{}{
					"period":     s.period,
					"step_index": i,
				}
			}
			rows[i][name] = v
		}
	}

	out := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		if row != nil {
			out = append(out, row)
		}
	}
	return out, nil
}

// fetchParents returns a top-level filtered collection, fetching it
// at most once per run.
func (s *Source) fetchParents(ctx context.Context, def *core.ResourceDef) ([]map[string]interface{}, error) {
	if cached, ok := s.parentCache[def.Name]; ok {
		return cached, nil
	}

	items, err := s.fetchList(ctx, "/"+def.Name, def.Name)
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

// fetchList paginates a cursor-based list endpoint. Customer.io
// carries the continuation token in a top-level "next" field and
// accepts it back in the "start" query parameter. Transient failures
// (5xx, timeouts) on a page fetch are retried with backoff before the
// page is surfaced as failed.
func (s *Source) fetchList(ctx context.Context, path, listKey string) ([]map[string]interface{}, error) {
	paginator := &sdk.Paginator{
		Strategy: &sdk.CursorStrategy{Param: "start"},
		Fetch: func(ctx context.Context, params url.Values) (*sdk.Page, error) {
			var page *sdk.Page
			err := s.Retry().Execute(ctx, func() error {
				var body map[string]interface{}
				if err := s.getJSON(ctx, path, params, &body); err != nil {
					return err
				}

				items, err := sdk.NormalizeEnvelope(body, listKey)
				if err != nil {
					return err
				}

				next, _ := body["next"].(string)
				page = &sdk.Page{Items: items, NextCursor: next, Total: -1}
				return nil
			})
			return page, err
		},
	}

	params := url.Values{"limit": {fmt.Sprintf("%d", s.Config.Performance.BatchSize)}}
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
// for full-refresh resources. Customer.io timestamps are unix epoch
// seconds.
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
	record := models.NewRecord("customerio")
	for k, v := range item {
		record.SetData(k, v)
	}
	record.Metadata.Resource = def.Name

	if def.Incremental() {
		if instant, err := sdk.ParseInstant(item[def.IncrementalField], sdk.NumberEpochSeconds); err == nil {
			s.AdvanceCursor(def.Name, instant)
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
