package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ArchieOS-org/Dispatch-sub000/core/port/out"
	"github.com/ArchieOS-org/Dispatch-sub000/pkg/httputil"
	"github.com/ArchieOS-org/Dispatch-sub000/pkg/syncerr"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

const maxErrorBody = 4 << 10

// =============================================================================
// RESTFacade
// =============================================================================

// RESTConfig configures the PostgREST-style HTTP facade.
type RESTConfig struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// RESTFacade maps facade calls onto /rest/v1/{table} endpoints. A gobreaker
// guards the host so a dead backend fails fast between sync cycles.
type RESTFacade struct {
	base   string
	apiKey string
	client *http.Client
	cb     *gobreaker.CircuitBreaker
	log    zerolog.Logger
}

func NewRESTFacade(cfg RESTConfig, log zerolog.Logger) *RESTFacade {
	client := cfg.Client
	if client == nil {
		client = httputil.DefaultClient()
	}
	log = log.With().Str("component", "rest_facade").Logger()

	cbSettings := gobreaker.Settings{
		Name:        "rest-facade",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("transport breaker state changed")
		},
	}

	return &RESTFacade{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey: cfg.APIKey,
		client: client,
		cb:     gobreaker.NewCircuitBreaker(cbSettings),
		log:    log,
	}
}

// UpsertBatch posts each row and patches it when the server reports a
// conflict. Status errors belong to the row; transport errors end the batch.
func (f *RESTFacade) UpsertBatch(ctx context.Context, table string, rows []out.Row) ([]out.RowResult, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	results := make([]out.RowResult, 0, len(rows))
	for _, row := range rows {
		err := f.do(ctx, http.MethodPost, f.tableURL(table, nil), table, row.Payload, nil)

		var status *syncerr.HTTPStatusError
		if errors.As(err, &status) && status.StatusCode == http.StatusConflict {
			f.log.Debug().Str("table", table).Str("id", row.ID.String()).Msg("conflict, patching")
			err = f.do(ctx, http.MethodPatch, f.tableURL(table, idFilter(row.ID)), table, row.Payload, nil)
		}

		if err != nil && !errors.As(err, &status) {
			return nil, fmt.Errorf("upsert %s %s: %w", table, row.ID, err)
		}
		results = append(results, out.RowResult{ID: row.ID, Err: err})
	}
	return results, nil
}

func (f *RESTFacade) DeleteRow(ctx context.Context, table string, id uuid.UUID) error {
	if err := checkTable(table); err != nil {
		return err
	}
	return f.do(ctx, http.MethodDelete, f.tableURL(table, idFilter(id)), table, nil, nil)
}

func (f *RESTFacade) FetchChanged(ctx context.Context, table string, since *time.Time) ([]json.RawMessage, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "updated_at.asc")
	if since != nil {
		q.Set("updated_at", "gt."+since.UTC().Format(time.RFC3339Nano))
	}

	var rows []json.RawMessage
	if err := f.do(ctx, http.MethodGet, f.tableURL(table, q), table, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// State exposes the transport breaker state for status reporting.
func (f *RESTFacade) State() string {
	return f.cb.State().String()
}

// =============================================================================
// Transport
// =============================================================================

func idFilter(id uuid.UUID) url.Values {
	return url.Values{"id": []string{"eq." + id.String()}}
}

func (f *RESTFacade) tableURL(table string, q url.Values) string {
	u := f.base + "/rest/v1/" + url.PathEscape(table)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// do runs one request through the breaker. 4xx responses are returned to
// the caller without counting against the breaker.
func (f *RESTFacade) do(ctx context.Context, method, target, table string, body json.RawMessage, dst any) error {
	_, err := f.cb.Execute(func() (interface{}, error) {
		err := f.roundTrip(ctx, method, target, table, body, dst)
		var status *syncerr.HTTPStatusError
		if errors.As(err, &status) && status.StatusCode < 500 && status.StatusCode != http.StatusTooManyRequests {
			return nil, &nonCircuitError{err: err}
		}
		return nil, err
	})

	var nce *nonCircuitError
	if errors.As(err, &nce) {
		return nce.err
	}
	if err != nil {
		f.log.Debug().Err(err).Str("method", method).Str("table", table).Str("breaker", f.cb.State().String()).Msg("request failed")
	}
	return err
}

func (f *RESTFacade) roundTrip(ctx context.Context, method, target, table string, body json.RawMessage, dst any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=minimal")
	}
	if f.apiKey != "" {
		req.Header.Set("apikey", f.apiKey)
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}

	resp, err := httputil.DoWithContext(ctx, f.client, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &syncerr.HTTPStatusError{StatusCode: resp.StatusCode, Table: table, Body: strings.TrimSpace(string(msg))}
	}
	if dst == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return syncerr.DecodingFailed(table, err)
	}
	return nil
}

// nonCircuitError wraps errors that should not trip the breaker.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}
