package secure

import (
	"context"
	"errors"

	"tootline/internal/repo"
)

// SQLite stores secrets in the workspace database's secrets table.
type SQLite struct {
	Repo repo.Repo
}

func (s SQLite) Set(ctx context.Context, key, value string) error {
	return s.Repo.SetSecret(ctx, key, value)
}

func (s SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.Repo.GetSecret(ctx, key)
	if errors.Is(err, repo.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s SQLite) Flush(ctx context.Context) error {
	return s.Repo.DeleteSecrets(ctx)
}
