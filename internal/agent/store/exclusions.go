package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/syncagent/internal/agent/models"
	"github.com/dmitrijs2005/syncagent/internal/agent/repositories/metadata"
	"github.com/dmitrijs2005/syncagent/internal/dbx"
)

const (
	KeyFolderNames = "folderNames"
	KeyFileNames   = "filenames"
)

type ExclusionStore struct {
	db   *sql.DB
	repo metadata.Repository
}

func NewExclusionStore(d *DB) *ExclusionStore {
	return &ExclusionStore{db: d.SQL, repo: d.Metadata}
}

// Load reads both name sets. Absent keys give empty sets.
func (s *ExclusionStore) Load(ctx context.Context) (models.Exclusions, error) {
	folders, err := loadSet(ctx, s.repo, KeyFolderNames)
	if err != nil {
		return models.Exclusions{}, err
	}
	files, err := loadSet(ctx, s.repo, KeyFileNames)
	if err != nil {
		return models.Exclusions{}, err
	}
	return models.Exclusions{Folders: folders, Files: files}, nil
}

// FoldersJSON returns the raw folder-name array as stored, "[]" when absent.
func (s *ExclusionStore) FoldersJSON(ctx context.Context) (string, error) {
	raw, err := s.repo.Get(ctx, KeyFolderNames)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", KeyFolderNames, err)
	}
	if len(raw) == 0 {
		return "[]", nil
	}
	return string(raw), nil
}

func (s *ExclusionStore) Save(ctx context.Context, ex models.Exclusions) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if err := saveSet(ctx, repo, KeyFolderNames, ex.Folders); err != nil {
			return err
		}
		return saveSet(ctx, repo, KeyFileNames, ex.Files)
	})
}

// Add merges folder and file names into the stored sets.
func (s *ExclusionStore) Add(ctx context.Context, folders, files []string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if err := mergeSet(ctx, repo, KeyFolderNames, folders); err != nil {
			return err
		}
		return mergeSet(ctx, repo, KeyFileNames, files)
	})
}

func loadSet(ctx context.Context, repo metadata.Repository, key string) (models.NameSet, error) {
	raw, err := repo.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	set := models.NewNameSet()
	if len(raw) == 0 {
		return set, nil
	}
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return set, nil
}

func saveSet(ctx context.Context, repo metadata.Repository, key string, set models.NameSet) error {
	if set == nil {
		set = models.NewNameSet()
	}
	raw, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return repo.Set(ctx, key, raw)
}

func mergeSet(ctx context.Context, repo metadata.Repository, key string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	set, err := loadSet(ctx, repo, key)
	if err != nil {
		return err
	}
	for _, n := range names {
		set.Add(n)
	}
	return saveSet(ctx, repo, key, set)
}
