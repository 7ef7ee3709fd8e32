// Package sdk implements the extraction protocol shared by all
// source connectors: pagination strategies, the incremental window
// filter, and the parent-child fan-out resolver.
package sdk

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/ajitpratap0/comet/pkg/errors"
	"github.com/ajitpratap0/comet/pkg/logger"
)

const (
	// maxSkip is the safety ceiling for offset pagination. APIs that
	// never signal completion are cut off here.
	maxSkip = 100000

	// maxPage is the safety ceiling for page-number pagination.
	maxPage = 10000

	// emptyPageTolerance is how many consecutive empty pages are
	// tolerated before pagination halts without a formal end signal.
	emptyPageTolerance = 3
)

// Page is one normalized API response unit.
type Page struct {
	// Items are the flattened records of this page
	Items []map[string]interface{}
	// NextCursor is the continuation token; empty means exhausted
	NextCursor string
	// Total is the reported collection size, -1 when unknown
	Total int
}

// FetchFunc performs one page request with the given query parameters
// and returns the normalized page.
type FetchFunc func(ctx context.Context, params url.Values) (*Page, error)

// Strategy is one of the closed set of pagination idioms. Prepare
// seeds the first request's parameters; Advance inspects the fetched
// page, mutates the parameters for the next request, and reports
// whether another request should be made.
type Strategy interface {
	Prepare(params url.Values)
	Advance(page *Page, params url.Values) bool
}

// CursorStrategy follows an opaque continuation token carried in each
// response. Termination is the absence of a token.
type CursorStrategy struct {
	// Param is the query parameter carrying the cursor
	Param string
}

func (s *CursorStrategy) Prepare(_ url.Values) {}

func (s *CursorStrategy) Advance(page *Page, params url.Values) bool {
	if page.NextCursor == "" {
		return false
	}
	params.Set(s.Param, page.NextCursor)
	return true
}

// OffsetStrategy walks a collection with skip/limit parameters. It
// stops on a short page, on reaching a reported total, or at the
// skip safety ceiling.
type OffsetStrategy struct {
	SkipParam  string
	LimitParam string
	Limit      int

	skip int
}

func (s *OffsetStrategy) Prepare(params url.Values) {
	if s.Limit <= 0 {
		s.Limit = 100
	}
	s.skip = 0
	params.Set(s.SkipParam, "0")
	params.Set(s.LimitParam, strconv.Itoa(s.Limit))
}

func (s *OffsetStrategy) Advance(page *Page, params url.Values) bool {
	s.skip += len(page.Items)

	// A short non-empty page is the end of the collection. Empty
	// pages are left to the paginator's tolerance counter.
	if len(page.Items) > 0 && len(page.Items) < s.Limit {
		return false
	}
	if page.Total >= 0 && s.skip >= page.Total {
		return false
	}
	if s.skip >= maxSkip {
		logger.Get().Warn("offset pagination hit safety ceiling",
			zap.Int("skip", s.skip), zap.Int("ceiling", maxSkip))
		return false
	}

	params.Set(s.SkipParam, strconv.Itoa(s.skip))
	return true
}

// PageNumberStrategy walks a collection with a 1-based page counter.
type PageNumberStrategy struct {
	PageParam  string
	LimitParam string
	Limit      int

	page  int
	count int
}

func (s *PageNumberStrategy) Prepare(params url.Values) {
	if s.Limit <= 0 {
		s.Limit = 100
	}
	s.page = 1
	s.count = 0
	params.Set(s.PageParam, "1")
	params.Set(s.LimitParam, strconv.Itoa(s.Limit))
}

func (s *PageNumberStrategy) Advance(page *Page, params url.Values) bool {
	s.count += len(page.Items)

	if len(page.Items) > 0 && len(page.Items) < s.Limit {
		return false
	}
	if page.Total >= 0 && s.count >= page.Total {
		return false
	}
	if s.page >= maxPage {
		logger.Get().Warn("page-number pagination hit safety ceiling",
			zap.Int("page", s.page), zap.Int("ceiling", maxPage))
		return false
	}

	s.page++
	params.Set(s.PageParam, strconv.Itoa(s.page))
	return true
}

// Paginator drives a Strategy over a FetchFunc, yielding items in
// page order until the strategy terminates or the empty-page
// tolerance is exhausted.
type Paginator struct {
	Strategy Strategy
	Fetch    FetchFunc
}

// Run paginates the endpoint, invoking emit for every item. It
// returns the first error from the fetcher or from emit.
func (p *Paginator) Run(ctx context.Context, params url.Values, emit func(map[string]interface{}) error) error {
	if params == nil {
		params = url.Values{}
	}
	p.Strategy.Prepare(params)

	emptyPages := 0

	for {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeTimeout, "pagination cancelled")
		}

		page, err := p.Fetch(ctx, cloneValues(params))
		if err != nil {
			return err
		}

		if len(page.Items) == 0 {
			emptyPages++
			if emptyPages >= emptyPageTolerance {
				logger.Get().Warn("halting pagination after consecutive empty pages",
					zap.Int("empty_pages", emptyPages))
				return nil
			}
		} else {
			emptyPages = 0
			for _, item := range page.Items {
				if err := emit(item); err != nil {
					return err
				}
			}
		}

		if !p.Strategy.Advance(page, params) {
			return nil
		}
	}
}

// Collect runs pagination and gathers all items into a slice.
func (p *Paginator) Collect(ctx context.Context, params url.Values) ([]map[string]interface{}, error) {
	var out []map[string]interface{}
	err := p.Run(ctx, params, func(item map[string]interface{}) error {
		out = append(out, item)
		return nil
	})
	return out, err
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}

// NormalizeEnvelope flattens the response envelope shapes seen across
// providers into an ordered item slice: a bare array, an object with
// a well-known list key ("data", "results", ...), or a map keyed by
// stringified integers. An unrecognized shape is a hard error so an
// upstream outage is not mistaken for an empty collection.
func NormalizeEnvelope(body interface{}, listKeys ...string) ([]map[string]interface{}, error) {
	if body == nil {
		return nil, errors.New(errors.ErrorTypeData, "response body is empty")
	}

	switch v := body.(type) {
	case []interface{}:
		return itemsFromSlice(v)

	case map[string]interface{}:
		if len(listKeys) == 0 {
			listKeys = []string{"data", "results"}
		}
		for _, key := range listKeys {
			inner, ok := v[key]
			if !ok {
				continue
			}
			switch list := inner.(type) {
			case []interface{}:
				return itemsFromSlice(list)
			case map[string]interface{}:
				if items, ok := itemsFromIntKeyedMap(list); ok {
					return items, nil
				}
			case nil:
				return nil, nil
			}
		}
		if items, ok := itemsFromIntKeyedMap(v); ok {
			return items, nil
		}
		return nil, errors.New(errors.ErrorTypeData, "response envelope has no recognizable item list").
			WithDetail("tried_keys", listKeys)

	default:
		return nil, errors.New(errors.ErrorTypeData,
			fmt.Sprintf("unexpected response envelope type %T", body))
	}
}

func itemsFromSlice(list []interface{}) ([]map[string]interface{}, error) {
	items := make([]map[string]interface{}, 0, len(list))
	for i, entry := range list {
		m, ok := entry.(map[string]interface{})
		if !ok {
			return nil, errors.New(errors.ErrorTypeData,
				fmt.Sprintf("item %d is %T, expected object", i, entry))
		}
		items = append(items, m)
	}
	return items, nil
}

// itemsFromIntKeyedMap handles the {"0": {...}, "1": {...}} envelope,
// ordering items by their numeric key.
func itemsFromIntKeyedMap(m map[string]interface{}) ([]map[string]interface{}, bool) {
	if len(m) == 0 {
		return nil, false
	}

	type keyed struct {
		idx  int
		item map[string]interface{}
	}
	entries := make([]keyed, 0, len(m))

	for k, v := range m {
		idx, err := strconv.Atoi(k)
		if err != nil {
			return nil, false
		}
		item, ok := v.(map[string]interface{})
		if !ok {
			return nil, false
		}
		entries = append(entries, keyed{idx: idx, item: item})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].idx < entries[j].idx })

	items := make([]map[string]interface{}, len(entries))
	for i, e := range entries {
		items[i] = e.item
	}
	return items, true
}

// CheckRequestStatus validates the embedded status field ad-platform
// APIs carry inside otherwise-200 responses. A non-success status
// aborts the page.
func CheckRequestStatus(body map[string]interface{}, statusKey string) error {
	raw, ok := body[statusKey]
	if !ok {
		return nil
	}
	status, _ := raw.(string)
	if status == "SUCCESS" {
		return nil
	}
	return errors.New(errors.ErrorTypeAPI, fmt.Sprintf("request status %q", status)).
		WithDetail(statusKey, raw)
}
