package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"tootline/internal/auth"
	"tootline/internal/composer"
	"tootline/internal/config"
	"tootline/internal/db"
	"tootline/internal/domain"
	"tootline/internal/endpoint"
	"tootline/internal/events"
	"tootline/internal/migrate"
	"tootline/internal/repo"
	"tootline/internal/response"
	"tootline/internal/secure"
	"tootline/internal/transport"
)

// Options select the workspace and overrides for one process.
type Options struct {
	Workspace  string
	ConfigPath string
	// Storage overrides config.storage.backend when set.
	Storage string
	Logger  *slog.Logger
}

// Context holds everything a command or the API server needs.
type Context struct {
	Config    *config.Config
	DB        *sql.DB
	Repo      repo.Repo
	Store     secure.Store
	Transport transport.Transport
	Auth      *auth.Machine
	Composer  *composer.Machine
	Log       *slog.Logger
}

// Open wires config, storage, transport and both state machines, then
// restores any persisted session.
func Open(ctx context.Context, opts Options) (*Context, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	r := repo.Repo{DB: conn}
	c := &Context{Config: cfg, DB: conn, Repo: r, Log: log}

	backend := cfg.Storage.Backend
	if opts.Storage != "" {
		backend = opts.Storage
	}
	c.Store, err = openStore(opts.Workspace, cfg, backend, r)
	if err != nil {
		conn.Close()
		return nil, err
	}
	c.Transport, err = newTransport(cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	rejected, err := rejectionList(opts.Workspace, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}

	sink := events.Writer{Repo: r}
	c.Auth = auth.New(c.Store, c.Transport, auth.Config{
		App:             domain.RegisteredApplication{Name: cfg.App.Name, Website: cfg.App.Website},
		RedirectURI:     cfg.App.RedirectURI,
		Scopes:          cfg.App.Scopes,
		Rejected:        rejected,
		VerifyOnRestore: cfg.App.VerifyOnRestore,
	}, auth.WithLogger(log), auth.WithSink(sink))
	c.Composer = composer.New(SessionPublisher{Auth: c.Auth},
		composer.WithLogger(log), composer.WithSink(sink), composer.WithPolicy(cfg.Policy()))

	if _, err := c.Auth.Restore(ctx); err != nil {
		log.Warn("restore session", "error", err)
	}
	return c, nil
}

func (c *Context) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// RefreshLimit adopts the instance's character limit when signed in.
func (c *Context) RefreshLimit(ctx context.Context) composer.Policy {
	client, err := c.Auth.Client()
	if err != nil {
		return c.Composer.Policy()
	}
	inst, err := client.Instance(ctx).Unwrap()
	if err != nil {
		c.Log.Warn("fetch instance limits", "error", err)
		return c.Composer.Policy()
	}
	return c.Composer.ApplyInstanceLimit(inst)
}

func loadConfig(opts Options) (*config.Config, error) {
	if opts.ConfigPath != "" {
		return config.FromFile(opts.ConfigPath)
	}
	return config.LoadOptional(opts.Workspace)
}

func openStore(workspace string, cfg *config.Config, backend string, r repo.Repo) (secure.Store, error) {
	switch backend {
	case config.StorageSQLite:
		return secure.SQLite{Repo: r}, nil
	case config.StorageMemory:
		return secure.NewMemory(), nil
	case config.StorageFile:
		path := cfg.Storage.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(workspaceDir(workspace), path)
		}
		pass := os.Getenv(cfg.Storage.PassphraseEnv)
		store, err := secure.NewFile(path, pass)
		if errors.Is(err, secure.ErrEmptyPassphrase) {
			return nil, fmt.Errorf("file storage needs a passphrase in $%s: %w", cfg.Storage.PassphraseEnv, err)
		}
		return store, err
	}
	return nil, fmt.Errorf("unknown storage backend %q", backend)
}

func newTransport(cfg *config.Config) (*transport.HTTP, error) {
	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, err
	}
	tr := transport.NewHTTP(timeout)
	if cfg.HTTP.UserAgent != "" {
		tr.UserAgent = cfg.HTTP.UserAgent
	}
	return tr, nil
}

func rejectionList(workspace string, cfg *config.Config) (*auth.RejectionList, error) {
	list := auth.NewRejectionList(cfg.RejectedDomains...)
	if cfg.RejectedDomainsFile == "" {
		return list, nil
	}
	path := cfg.RejectedDomainsFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(workspaceDir(workspace), path)
	}
	fromFile, err := auth.LoadRejectionList(path)
	if err != nil {
		return nil, err
	}
	return list.Merge(fromFile), nil
}

func workspaceDir(workspace string) string {
	if workspace == "" {
		return "."
	}
	return workspace
}

// SessionPublisher publishes through whichever session the auth machine
// holds at the time of the call.
type SessionPublisher struct {
	Auth *auth.Machine
}

var _ composer.Publisher = SessionPublisher{}

func (p SessionPublisher) PublishStatus(ctx context.Context, params endpoint.StatusParams, key string) response.Result[domain.Status] {
	client, err := p.Auth.Client()
	if err != nil {
		return notSignedIn(err)
	}
	return client.PublishStatus(ctx, params, key)
}

func (p SessionPublisher) EditStatus(ctx context.Context, id string, params endpoint.StatusParams, key string) response.Result[domain.Status] {
	client, err := p.Auth.Client()
	if err != nil {
		return notSignedIn(err)
	}
	return client.EditStatus(ctx, id, params, key)
}

func notSignedIn(err error) response.Result[domain.Status] {
	return response.Failure[domain.Status](&response.FetchError{
		Kind:   response.KindMessage,
		Reason: "not signed in: " + err.Error(),
		Cause:  err,
	})
}
