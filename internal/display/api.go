package display

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/viewer"
)

// API reads what a display needs from the public endpoints: screen views and
// the center settings.
type API struct {
	base   string
	client *http.Client
}

var _ viewer.ScreenDirectory = (*API)(nil)

func NewAPI(baseURL string) *API {
	return &API{
		base: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type envelope[T any] struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    *T     `json:"data"`
}

func get[T any](ctx context.Context, a *API, path, what string) (*T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.base+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", what, err)
	}
	defer resp.Body.Close()

	var body envelope[T]
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", what, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: HTTP %d: %s", what, resp.StatusCode, body.Message)
	}
	if body.Data == nil {
		return nil, fmt.Errorf("%s: empty response", what)
	}
	return body.Data, nil
}

// ScreenView reads GET /api/v1/public/screens/:number.
func (a *API) ScreenView(ctx context.Context, number int) (*model.ScreenView, error) {
	return get[model.ScreenView](ctx, a, fmt.Sprintf("/api/v1/public/screens/%d", number), fmt.Sprintf("screen %d", number))
}

// Settings reads GET /api/v1/public/settings.
func (a *API) Settings(ctx context.Context) (model.Settings, error) {
	s, err := get[model.Settings](ctx, a, "/api/v1/public/settings", "settings")
	if err != nil {
		return model.Settings{}, err
	}
	return *s, nil
}

// SettingsSource is where a display reads the center settings from.
type SettingsSource interface {
	Settings(ctx context.Context) (model.Settings, error)
}

// ApplySettings loads the center settings and sets the session's call bar
// duration from alertDuration. On error the session is left unchanged.
func ApplySettings(ctx context.Context, src SettingsSource, sess *viewer.Session) (model.Settings, error) {
	settings, err := src.Settings(ctx)
	if err != nil {
		return model.Settings{}, err
	}
	sess.SetNoticeDuration(settings.AlertDurationOrDefault())
	return settings, nil
}
