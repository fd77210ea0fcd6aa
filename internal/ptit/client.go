package ptit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"ptitcal/internal/models"
)

var (
	ErrNetwork    = errors.New("network error")
	ErrHTTPStatus = errors.New("unexpected HTTP status")
	ErrDecode     = errors.New("undecodable response")
	ErrAuth       = errors.New("no access token")
)

// ErrInvalidRange is returned when from or to is missing or malformed.
var ErrInvalidRange = errors.New("invalid date range")

// FetchError aborts FetchEvents. Kind is one of ErrNetwork, ErrHTTPStatus,
// ErrDecode or ErrAuth; Err is the cause.
type FetchError struct {
	Source     string
	StatusCode int
	Kind       error
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s: %v", e.Source, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// TokenSource yields a bearer token per request. *session.Session implements it.
type TokenSource interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher queries every registered source and merges the results.
type Fetcher struct {
	baseURL string
	tokens  TokenSource
	client  HTTPDoer
	logger  *slog.Logger
	sources []Source
}

func NewFetcher(baseURL string, tokens TokenSource, client HTTPDoer, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		client:  client,
		logger:  logger,
		sources: Sources,
	}
}

// WithSources restricts the fetcher to the given sources, kept in the given order.
func (f *Fetcher) WithSources(sources []Source) *Fetcher {
	cp := *f
	cp.sources = append([]Source(nil), sources...)
	return &cp
}

type envelope struct {
	Success bool              `json:"success"`
	Data    []json.RawMessage `json:"data"`
}

// FetchEvents returns the events of all sources between from and to, in
// registry order. Any source failure aborts the call with a *FetchError and
// no partial list. Sources answering success=false are skipped, as are
// records that cannot be mapped.
func (f *Fetcher) FetchEvents(ctx context.Context, from, to string) ([]models.Event, error) {
	if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
		return nil, fmt.Errorf("%w: from and to are required", ErrInvalidRange)
	}

	events := make([]models.Event, 0)
	for _, src := range f.sources {
		got, err := f.fetchSource(ctx, src, from, to)
		if err != nil {
			return nil, err
		}
		events = append(events, got...)
	}
	f.logger.Info("Fetched events.", "from", from, "to", to, "count", len(events))
	return events, nil
}

func (f *Fetcher) fetchSource(ctx context.Context, src Source, from, to string) ([]models.Event, error) {
	tok, err := f.tokens.Token(ctx)
	if err != nil {
		return nil, &FetchError{Source: src.Name, Kind: ErrAuth, Err: err}
	}

	endpoint := fmt.Sprintf("%s%s/from/%s/to/%s", f.baseURL, src.Path, from, to)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{Source: src.Name, Kind: ErrNetwork, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	tok.SetAuthHeader(req)

	f.logger.Debug("Fetching source.", "source", src.Name, "path", src.Path)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Source: src.Name, Kind: ErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		detail := strings.TrimSpace(string(body))
		if detail == "" {
			detail = http.StatusText(resp.StatusCode)
		}
		return nil, &FetchError{
			Source:     src.Name,
			StatusCode: resp.StatusCode,
			Kind:       ErrHTTPStatus,
			Err:        errors.New(detail),
		}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, &FetchError{Source: src.Name, StatusCode: resp.StatusCode, Kind: ErrDecode, Err: err}
	}
	if !env.Success {
		f.logger.Debug("Source returned no data.", "source", src.Name)
		return nil, nil
	}

	events := make([]models.Event, 0, len(env.Data))
	for i, record := range env.Data {
		ev, err := normalize(src, i, record)
		if err != nil {
			f.logger.Warn("Skipping record.", "source", src.Name, "error", err)
			continue
		}
		events = append(events, ev)
	}
	f.logger.Debug("Source fetched.", "source", src.Name, "records", len(env.Data), "events", len(events))
	return events, nil
}
