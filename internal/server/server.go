package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"tootline/internal/auth"
	"tootline/internal/composer"
	"tootline/internal/deeplink"
	"tootline/internal/domain"
	"tootline/internal/mastodon"
	"tootline/internal/reducer"
	"tootline/internal/repo"
	"tootline/internal/response"
)

// CallbackPath receives the OAuth redirect when redirect_uri points at the server.
const CallbackPath = "/oauth/callback"

// Config for the HTTP API handler.
type Config struct {
	Auth      *auth.Machine
	Composer  *composer.Machine
	Repo      repo.Repo
	BasePath  string
	JWTSecret string
	Logger    *slog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"domain_rejected"`
	Message string         `json:"message" example:"instance domain is rejected: bad.example"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the local control API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Auth == nil || cfg.Composer == nil {
		return nil, errors.New("auth and composer machines are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.JWTSecret))
	hcfg := huma.DefaultConfig("Tootline API", "0.1.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerCallback(router, cfg.Auth, cfg.Logger)
	registerHealth(group)
	registerAuth(group, cfg.Auth)
	registerCompose(group, cfg.Composer)
	if cfg.Repo.DB != nil {
		registerTransitions(group, cfg.Repo)
	}
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	msg := err.Error()
	var fe *response.FetchError
	switch {
	case errors.Is(err, auth.ErrDomainRejected):
		return newAPIError(http.StatusForbidden, "domain_rejected", msg, nil)
	case errors.Is(err, mastodon.ErrInvalidDomain):
		return newAPIError(http.StatusBadRequest, "invalid_domain", msg, nil)
	case errors.Is(err, auth.ErrSigninInProgress):
		return newAPIError(http.StatusConflict, "signin_in_progress", msg, nil)
	case errors.Is(err, auth.ErrAlreadyAuthenticated):
		return newAPIError(http.StatusConflict, "already_authenticated", msg, nil)
	case errors.Is(err, auth.ErrNotSigningIn):
		return newAPIError(http.StatusConflict, "not_signing_in", msg, nil)
	case errors.Is(err, auth.ErrNotAuthenticated):
		return newAPIError(http.StatusConflict, "not_authenticated", msg, nil)
	case errors.Is(err, auth.ErrRefreshing), errors.Is(err, reducer.ErrBusy):
		return newAPIError(http.StatusConflict, "busy", msg, nil)
	case errors.Is(err, deeplink.ErrNotComposeLink):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case errors.As(err, &fe):
		if response.IsNotFound(fe) {
			return newAPIError(http.StatusNotFound, "not_found", msg, nil)
		}
		return newAPIError(http.StatusBadGateway, "upstream_error", msg, map[string]any{
			"kind":      string(fe.Kind),
			"status":    fe.StatusCode,
			"category":  fe.Category(),
			"retryable": fe.Retryable(),
		})
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var once sync.Once
	var doc []byte
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			doc, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Patch,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{Description: "Error"}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Patch,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <title>Tootline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; from tl serve --print-token.
    </p>
  </body>
</html>`, specURL)
}

// registerCallback feeds the authorization code from the browser redirect
// into the auth machine. The code is never echoed back.
func registerCallback(r chi.Router, m *auth.Machine, log *slog.Logger) {
	r.Get(CallbackPath, func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		q := req.URL.Query()
		if e := q.Get("error"); e != "" {
			log.Warn("authorization denied", "error", e)
			m.CancelSignin(req.Context())
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, "<p>Authorization was not granted: %s</p>", html.EscapeString(q.Get("error_description")))
			return
		}
		code := strings.TrimSpace(q.Get("code"))
		if code == "" {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, "<p>Missing authorization code.</p>")
			return
		}
		s, err := m.ContinueOAuthFlow(req.Context(), code)
		if err != nil {
			status := handleError(err).GetStatus()
			w.WriteHeader(status)
			fmt.Fprintf(w, "<p>Sign-in failed: %s</p>", html.EscapeString(err.Error()))
			return
		}
		fmt.Fprintf(w, "<p>Signed in to %s. You can close this window.</p>", html.EscapeString(s.Domain))
	})
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

type authStateOutput struct {
	Body AuthStateResponse `json:"body"`
}

func authResult(s auth.State, err error) (*authStateOutput, error) {
	if err != nil {
		return nil, handleError(err)
	}
	return &authStateOutput{Body: mapAuthState(s)}, nil
}

var authErrors = []int{
	http.StatusBadRequest,
	http.StatusForbidden,
	http.StatusConflict,
	http.StatusBadGateway,
	http.StatusInternalServerError,
}

func registerAuth(api huma.API, m *auth.Machine) {
	huma.Register(api, huma.Operation{
		OperationID: "auth-state",
		Method:      http.MethodGet,
		Path:        "/auth/state",
		Summary:     "Current authentication state",
	}, func(ctx context.Context, _ *struct{}) (*authStateOutput, error) {
		return &authStateOutput{Body: mapAuthState(m.State())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "auth-login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Register with an instance and start the OAuth flow",
		Errors:      authErrors,
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*authStateOutput, error) {
		if strings.TrimSpace(input.Body.Domain) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "domain is required", nil)
		}
		return authResult(m.StartOAuthFlow(ctx, input.Body.Domain))
	})

	huma.Register(api, huma.Operation{
		OperationID: "auth-code",
		Method:      http.MethodPost,
		Path:        "/auth/code",
		Summary:     "Exchange an authorization code",
		Errors:      authErrors,
	}, func(ctx context.Context, input *struct {
		Body CodeRequest `json:"body"`
	}) (*authStateOutput, error) {
		if strings.TrimSpace(input.Body.Code) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "code is required", nil)
		}
		return authResult(m.ContinueOAuthFlow(ctx, input.Body.Code))
	})

	huma.Register(api, huma.Operation{
		OperationID: "auth-logout",
		Method:      http.MethodPost,
		Path:        "/auth/logout",
		Summary:     "Sign out and clear stored credentials",
	}, func(ctx context.Context, _ *struct{}) (*authStateOutput, error) {
		return authResult(m.SignOut(ctx))
	})

	huma.Register(api, huma.Operation{
		OperationID: "auth-cancel",
		Method:      http.MethodPost,
		Path:        "/auth/cancel",
		Summary:     "Abort a pending sign-in",
		Errors:      []int{http.StatusConflict},
	}, func(ctx context.Context, _ *struct{}) (*authStateOutput, error) {
		return authResult(m.CancelSignin(ctx))
	})
}

type composeStateOutput struct {
	Body ComposeStateResponse `json:"body"`
}

func registerCompose(api huma.API, m *composer.Machine) {
	result := func(s composer.State, err error) (*composeStateOutput, error) {
		if err != nil {
			return nil, handleError(err)
		}
		return &composeStateOutput{Body: mapComposeState(s, m.Policy())}, nil
	}

	huma.Register(api, huma.Operation{
		OperationID: "compose-state",
		Method:      http.MethodGet,
		Path:        "/compose/state",
		Summary:     "Current composer state",
	}, func(ctx context.Context, _ *struct{}) (*composeStateOutput, error) {
		return result(m.State(), nil)
	})

	huma.Register(api, huma.Operation{
		OperationID: "compose-start",
		Method:      http.MethodPost,
		Path:        "/compose/draft",
		Summary:     "Start a draft",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body DraftRequest `json:"body"`
	}) (*composeStateOutput, error) {
		d, err := input.Body.toDraft()
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		return result(m.Emit(ctx, composer.StartDraft{Draft: d}))
	})

	huma.Register(api, huma.Operation{
		OperationID: "compose-update",
		Method:      http.MethodPatch,
		Path:        "/compose/draft",
		Summary:     "Update draft fields",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body UpdateDraftRequest `json:"body"`
	}) (*composeStateOutput, error) {
		evs, err := updateEvents(input.Body, m.State().Draft)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		s := m.State()
		for _, ev := range evs {
			s, err = m.Emit(ctx, ev)
			if err != nil || s.Phase == composer.PhaseErrored {
				break
			}
		}
		return result(s, err)
	})

	for _, op := range []struct {
		id, path, summary string
		event             composer.Event
	}{
		{"compose-publish", "/compose/publish", "Publish or edit the draft", composer.Publish{}},
		{"compose-reset", "/compose/reset", "Discard the draft", composer.Reset{}},
		{"compose-recover", "/compose/recover", "Return an errored composer to its draft", composer.Recover{}},
	} {
		event := op.event
		huma.Register(api, huma.Operation{
			OperationID: op.id,
			Method:      http.MethodPost,
			Path:        op.path,
			Summary:     op.summary,
			Errors:      []int{http.StatusConflict},
		}, func(ctx context.Context, _ *struct{}) (*composeStateOutput, error) {
			return result(m.Emit(ctx, event))
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "compose-count",
		Method:      http.MethodPost,
		Path:        "/compose/count",
		Summary:     "Count characters the way the server does",
	}, func(ctx context.Context, input *struct {
		Body CountRequest `json:"body"`
	}) (*struct {
		Body CountResponse `json:"body"`
	}, error) {
		p := m.Policy()
		return &struct {
			Body CountResponse `json:"body"`
		}{Body: CountResponse{
			Count:     composer.Count(input.Body.Mentions, input.Body.Content),
			Limit:     p.Limit,
			Remaining: p.Remaining(input.Body.Mentions, input.Body.Content),
			Allowed:   p.Allows(input.Body.Mentions, input.Body.Content),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "compose-link",
		Method:      http.MethodPost,
		Path:        "/compose/link",
		Summary:     "Start a draft from a compose deep link",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body LinkRequest `json:"body"`
	}) (*composeStateOutput, error) {
		c, err := deeplink.Parse(input.Body.URL)
		if err != nil {
			return nil, handleError(err)
		}
		return result(m.Emit(ctx, composer.StartDraft{Draft: c.Draft()}))
	})
}

// updateEvents turns a patch into update events. The content warning
// event carries both fields, so a half-specified one keeps the other.
func updateEvents(req UpdateDraftRequest, current *composer.Draft) ([]composer.Event, error) {
	var evs []composer.Event
	if req.Content != nil {
		evs = append(evs, composer.UpdateContent{Content: *req.Content})
	}
	if req.Mentions != nil {
		evs = append(evs, composer.UpdateParticipants{Mentions: *req.Mentions})
	}
	if req.Language != nil {
		evs = append(evs, composer.UpdateLocalizationCode{Language: *req.Language})
	}
	if req.Visibility != nil {
		vis, err := domain.ParseVisibility(*req.Visibility)
		if err != nil {
			return nil, err
		}
		evs = append(evs, composer.UpdateVisibility{Visibility: vis})
	}
	switch {
	case req.RemovePoll:
		evs = append(evs, composer.UpdatePoll{})
	case req.Poll != nil:
		evs = append(evs, composer.UpdatePoll{Poll: req.Poll.toDomain()})
	}
	if req.Sensitive != nil || req.SpoilerText != nil {
		cw := composer.UpdateContentWarning{}
		if current != nil {
			cw.Sensitive, cw.Disclaimer = current.Sensitive, current.SensitiveDisclaimer
		}
		if req.Sensitive != nil {
			cw.Sensitive = *req.Sensitive
		}
		if req.SpoilerText != nil {
			cw.Disclaimer = *req.SpoilerText
		}
		evs = append(evs, cw)
	}
	if len(evs) == 0 {
		return nil, errors.New("no fields to update")
	}
	return evs, nil
}

func registerTransitions(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "transitions",
		Method:      http.MethodGet,
		Path:        "/transitions",
		Summary:     "Recent state-machine transitions",
	}, func(ctx context.Context, input *struct {
		Machine string `query:"machine" doc:"auth or composer; empty for both"`
		Limit   int    `query:"limit" minimum:"0" maximum:"200"`
	}) (*struct {
		Body []TransitionResponse `json:"body"`
	}, error) {
		items, err := r.LatestTransitions(ctx, input.Limit, input.Machine)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TransitionResponse `json:"body"`
		}{Body: mapTransitions(items)}, nil
	})
}
