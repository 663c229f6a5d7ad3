package endpoint

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

var (
	ErrUnknownEndpoint  = errors.New("unknown endpoint")
	ErrMissingParameter = errors.New("missing path parameter")
)

// Kind identifies a symbolic server operation.
type Kind int

const (
	_ Kind = iota
	RegisterApp
	Authorize
	Token
	Revoke
	VerifyCredentials
	Account
	AccountStatuses
	HomeTimeline
	PublicTimeline
	Status
	StatusContext
	PublishStatus
	EditStatus
	Instance
	InstanceV2
)

var kindNames = map[Kind]string{
	RegisterApp:       "register_app",
	Authorize:         "authorize",
	Token:             "token",
	Revoke:            "revoke",
	VerifyCredentials: "verify_credentials",
	Account:           "account",
	AccountStatuses:   "account_statuses",
	HomeTimeline:      "home_timeline",
	PublicTimeline:    "public_timeline",
	Status:            "status",
	StatusContext:     "status_context",
	PublishStatus:     "publish_status",
	EditStatus:        "edit_status",
	Instance:          "instance",
	InstanceV2:        "instance_v2",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type route struct {
	method string
	format string
	needID bool
}

var catalog = map[Kind]route{
	RegisterApp:       {method: http.MethodPost, format: "/api/v1/apps"},
	Authorize:         {method: http.MethodGet, format: "/oauth/authorize"},
	Token:             {method: http.MethodPost, format: "/oauth/token"},
	Revoke:            {method: http.MethodPost, format: "/oauth/revoke"},
	VerifyCredentials: {method: http.MethodGet, format: "/api/v1/accounts/verify_credentials"},
	Account:           {method: http.MethodGet, format: "/api/v1/accounts/%s", needID: true},
	AccountStatuses:   {method: http.MethodGet, format: "/api/v1/accounts/%s/statuses", needID: true},
	HomeTimeline:      {method: http.MethodGet, format: "/api/v1/timelines/home"},
	PublicTimeline:    {method: http.MethodGet, format: "/api/v1/timelines/public"},
	Status:            {method: http.MethodGet, format: "/api/v1/statuses/%s", needID: true},
	StatusContext:     {method: http.MethodGet, format: "/api/v1/statuses/%s/context", needID: true},
	PublishStatus:     {method: http.MethodPost, format: "/api/v1/statuses"},
	EditStatus:        {method: http.MethodPut, format: "/api/v1/statuses/%s", needID: true},
	Instance:          {method: http.MethodGet, format: "/api/v1/instance"},
	InstanceV2:        {method: http.MethodGet, format: "/api/v2/instance"},
}

// Endpoint is an operation plus the identifier its path needs, if any.
type Endpoint struct {
	Kind Kind
	ID   string
}

// Route is a resolved endpoint.
type Route struct {
	Method string
	Path   string
}

func New(kind Kind) Endpoint { return Endpoint{Kind: kind} }

func WithID(kind Kind, id string) Endpoint { return Endpoint{Kind: kind, ID: id} }

// Resolve maps the endpoint to its method and origin-relative path.
func (e Endpoint) Resolve() (Route, error) {
	r, ok := catalog[e.Kind]
	if !ok {
		return Route{}, fmt.Errorf("%w: %s", ErrUnknownEndpoint, e.Kind)
	}
	if !r.needID {
		if e.ID != "" {
			return Route{}, fmt.Errorf("endpoint %s takes no id", e.Kind)
		}
		return Route{Method: r.method, Path: r.format}, nil
	}
	if e.ID == "" {
		return Route{}, fmt.Errorf("%w: %s requires an id", ErrMissingParameter, e.Kind)
	}
	return Route{Method: r.method, Path: fmt.Sprintf(r.format, url.PathEscape(e.ID))}, nil
}

// MustResolve panics on catalog misses; use only with constant endpoints.
func (e Endpoint) MustResolve() Route {
	r, err := e.Resolve()
	if err != nil {
		panic(err)
	}
	return r
}

func (e Endpoint) String() string {
	if e.ID == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + "(" + e.ID + ")"
}

// Kinds lists every operation in the catalog.
func Kinds() []Kind {
	out := make([]Kind, 0, len(catalog))
	for k := RegisterApp; k <= InstanceV2; k++ {
		out = append(out, k)
	}
	return out
}
