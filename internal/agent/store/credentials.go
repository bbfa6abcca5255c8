package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/syncagent/internal/agent/repositories/metadata"
	"github.com/dmitrijs2005/syncagent/internal/dbx"
)

const (
	KeyUsername = "savedUsername"
	KeyToken    = "token"
)

var (
	ErrNoCredentials = errors.New("no saved credentials")
	ErrBadToken      = errors.New("malformed saved token")
)

// Token is the pair the login endpoint hands out.
type Token struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

type Credentials struct {
	Username string
	Token    Token
}

type CredentialStore struct {
	db   *sql.DB
	repo metadata.Repository
}

func NewCredentialStore(d *DB) *CredentialStore {
	return &CredentialStore{db: d.SQL, repo: d.Metadata}
}

// Load reads the username and token. ErrNoCredentials is returned when either
// is missing or empty.
func (s *CredentialStore) Load(ctx context.Context) (*Credentials, error) {
	username, err := s.repo.Get(ctx, KeyUsername)
	if err != nil {
		return nil, fmt.Errorf("read username: %w", err)
	}
	if len(username) == 0 {
		return nil, ErrNoCredentials
	}

	raw, err := s.repo.Get(ctx, KeyToken)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrNoCredentials
	}

	var tok Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadToken, err)
	}
	if tok.Access == "" {
		return nil, ErrNoCredentials
	}

	return &Credentials{Username: string(username), Token: tok}, nil
}

// Save writes both values in one transaction.
func (s *CredentialStore) Save(ctx context.Context, c Credentials) error {
	raw, err := json.Marshal(c.Token)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if err := repo.Set(ctx, KeyUsername, []byte(c.Username)); err != nil {
			return err
		}
		return repo.Set(ctx, KeyToken, raw)
	})
}

// Clear forgets the token and username; exclusion sets are kept.
func (s *CredentialStore) Clear(ctx context.Context) error {
	return s.repo.Delete(ctx, KeyToken, KeyUsername)
}
