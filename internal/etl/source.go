package etl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"maps"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/BartekS5/ticketflow/internal/config"
	"github.com/BartekS5/ticketflow/pkg/etlerr"
	"github.com/BartekS5/ticketflow/pkg/logger"
	"github.com/BartekS5/ticketflow/pkg/metrics"
)

// EndDateLayout is the event API's endDateTime format.
const EndDateLayout = "2006-01-02T15:04:05Z"

// Page is one decoded page of the event listing.
type Page struct {
	Index  int
	Events []map[string]any
	// TotalPages is the page count reported by the API, or 0 when absent.
	TotalPages int
}

// EventSource reads the paginated event API.
type EventSource struct {
	client      *http.Client
	baseURL     string
	apiKey      string
	countryCode string
	lookahead   int
	maxPages    int
	now         func() time.Time
}

func NewEventSource(cfg *config.Config) *EventSource {
	return &EventSource{
		client:      newHTTPClient(cfg.HTTPTimeout),
		baseURL:     cfg.APIBaseURL,
		apiKey:      cfg.APIKey,
		countryCode: cfg.CountryCode,
		lookahead:   cfg.LookaheadWeeks,
		maxPages:    cfg.MaxPages,
		now:         time.Now,
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// DefaultParams filters on the configured country and events starting
// within the lookahead window.
func (s *EventSource) DefaultParams() map[string]string {
	until := s.now().UTC().AddDate(0, 0, 7*s.lookahead)
	until = time.Date(until.Year(), until.Month(), until.Day(), 0, 0, 0, 0, time.UTC)
	return map[string]string{
		"countryCode": s.countryCode,
		"endDateTime": until.Format(EndDateLayout),
	}
}

// Pages yields pages starting at index 0 until a page carries no events,
// the API reports no further pages, or the page cap is reached. A nil
// params map selects DefaultParams; otherwise params replace the defaults.
// The first error is yielded once and ends the sequence.
func (s *EventSource) Pages(ctx context.Context, pageSize int, params map[string]string) iter.Seq2[Page, error] {
	return func(yield func(Page, error) bool) {
		if params == nil {
			params = s.DefaultParams()
		}
		query := maps.Clone(params)
		query["apikey"] = s.apiKey
		query["size"] = strconv.Itoa(pageSize)

		for index := 0; s.maxPages == 0 || index < s.maxPages; index++ {
			query["page"] = strconv.Itoa(index)
			page, err := s.fetchPage(ctx, query)
			if err != nil {
				yield(Page{Index: index}, err)
				return
			}
			page.Index = index
			if len(page.Events) == 0 {
				logger.Infof("No more events found on page %d.", index)
				return
			}
			metrics.PagesFetchedTotal.Inc()
			logger.Infof("Fetched %d events from page %d.", len(page.Events), index)
			if !yield(page, nil) {
				return
			}
			if page.TotalPages > 0 && index+1 >= page.TotalPages {
				return
			}
		}
	}
}

// FetchEvents concatenates every page in order. Any failure aborts the
// whole fetch.
func (s *EventSource) FetchEvents(ctx context.Context, pageSize int, params map[string]string) ([]map[string]any, int, error) {
	return collectPages(ctx, s, pageSize, params)
}

func collectPages(ctx context.Context, f PageFetcher, pageSize int, params map[string]string) ([]map[string]any, int, error) {
	var (
		events []map[string]any
		pages  int
	)
	for page, err := range f.Pages(ctx, pageSize, params) {
		if err != nil {
			return nil, pages, err
		}
		pages++
		events = append(events, page.Events...)
	}
	return events, pages, nil
}

type pageResponse struct {
	Embedded struct {
		Events []map[string]any `json:"events"`
	} `json:"_embedded"`
	Page struct {
		TotalPages int `json:"totalPages"`
	} `json:"page"`
}

func (s *EventSource) fetchPage(ctx context.Context, query map[string]string) (Page, error) {
	op := "fetch events page " + query["page"]

	u, err := url.Parse(s.baseURL)
	if err != nil {
		return Page{}, etlerr.New(etlerr.KindConfiguration, op, err)
	}
	q := u.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Page{}, etlerr.New(etlerr.KindMalformedRequest, op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		kind := etlerr.Classify(err)
		if kind == etlerr.KindUnknown {
			kind = etlerr.KindTransport
		}
		return Page{}, etlerr.New(kind, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		kind := etlerr.KindTransport
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			kind = etlerr.KindConfiguration
		}
		return Page{}, etlerr.Errorf(kind, op, "status %d: %s", resp.StatusCode, body)
	}

	var decoded pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Page{}, etlerr.New(etlerr.KindTransport, op, fmt.Errorf("decode response: %w", err))
	}
	return Page{Events: decoded.Embedded.Events, TotalPages: decoded.Page.TotalPages}, nil
}
