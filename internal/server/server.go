// Package server exposes the read-only status API over HTTP. It serves
// the monitor's own data (persisted state plus the SQLite history) and
// mutates nothing, so it binds to localhost without authentication.
package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"linewatch/internal/domain"
	"linewatch/internal/repo"
	"linewatch/internal/state"
)

// Config for the HTTP API handler.
type Config struct {
	Store    *state.Store
	Repo     *repo.Repo
	Line     domain.LineContext
	BasePath string
	Metrics  http.Handler
}

type apiErrorBody struct {
	Code    string `json:"code" example:"not_found"`
	Message string `json:"message" example:"no checks recorded for line 29"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

func newAPIError(status int, code, message string) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{status: status, Body: apiErrorBody{Code: code, Message: message}}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if err == repo.ErrNotFound {
		return newAPIError(http.StatusNotFound, "not_found", err.Error())
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", err.Error())
}

// New returns an HTTP handler exposing the Linewatch status API.
func New(cfg Config) http.Handler {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg)
	}

	router := chi.NewRouter()
	hcfg := huma.DefaultConfig("Linewatch API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerStatus(group, cfg)
	registerDisruptions(group, cfg)
	registerChecks(group, cfg)
	registerNotifications(group, cfg)
	if cfg.Metrics != nil {
		router.Handle("/metrics", cfg.Metrics)
	}

	return router
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerStatus(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "line-status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Line status",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body LineStatusResponse `json:"body"`
	}, error) {
		st := cfg.Store.Load()
		resp := LineStatusResponse{
			Line:        cfg.Line.ID,
			Name:        cfg.Line.Name,
			StatusURL:   cfg.Line.StatusURL,
			ActiveCount: len(st.LastSnapshot.Records),
		}
		if !st.UpdatedAt.IsZero() {
			resp.UpdatedAt = formatBound(&st.UpdatedAt)
		}
		if cfg.Repo != nil {
			last, err := cfg.Repo.LastCheck(ctx, cfg.Line.ID)
			if err == nil {
				resp.LastCheck = &last
			} else if err != repo.ErrNotFound {
				return nil, handleError(err)
			}
		}
		return &struct {
			Body LineStatusResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerDisruptions(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-disruptions",
		Method:      http.MethodGet,
		Path:        "/disruptions",
		Summary:     "Current disruptions",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []DisruptionResponse `json:"body"`
	}, error) {
		st := cfg.Store.Load()
		return &struct {
			Body []DisruptionResponse `json:"body"`
		}{Body: mapDisruptions(st.LastSnapshot.Records)}, nil
	})
}

func registerChecks(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-checks",
		Method:      http.MethodGet,
		Path:        "/checks",
		Summary:     "Check history",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"20" minimum:"1" maximum:"200"`
	}) (*struct {
		Body []domain.CheckResult `json:"body"`
	}, error) {
		if cfg.Repo == nil {
			return nil, newAPIError(http.StatusNotFound, "not_found", "history is not enabled")
		}
		checks, err := cfg.Repo.LatestChecks(ctx, cfg.Line.ID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		if checks == nil {
			checks = []domain.CheckResult{}
		}
		return &struct {
			Body []domain.CheckResult `json:"body"`
		}{Body: checks}, nil
	})
}

func registerNotifications(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "Dispatched notifications",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"20" minimum:"1" maximum:"200"`
	}) (*struct {
		Body []domain.SentNotification `json:"body"`
	}, error) {
		if cfg.Repo == nil {
			return nil, newAPIError(http.StatusNotFound, "not_found", "history is not enabled")
		}
		sent, err := cfg.Repo.LatestNotifications(ctx, cfg.Line.ID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		if sent == nil {
			sent = []domain.SentNotification{}
		}
		return &struct {
			Body []domain.SentNotification `json:"body"`
		}{Body: sent}, nil
	})
}
