// Package versioning keeps an append-only history of entity snapshots and
// restores entities to earlier states.
package versioning

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"time"

	"github.com/reelsmith/studio/internal/apperr"
	"github.com/reelsmith/studio/internal/db"
	"github.com/reelsmith/studio/internal/logging"
	"github.com/reelsmith/studio/internal/studio"
)

var (
	ErrUnknownEntityType     = apperr.New(apperr.KindValidation, "UNKNOWN_ENTITY_TYPE", "unknown entity type")
	ErrVersionNotFound       = apperr.New(apperr.KindNotFound, "VERSION_NOT_FOUND", "version not found")
	ErrEntityNotFound        = apperr.New(apperr.KindNotFound, "ENTITY_NOT_FOUND", "entity not found")
	ErrCrossEntityComparison = apperr.New(apperr.KindValidation, "CROSS_ENTITY_COMPARISON", "versions belong to different entities")
)

// Version is one immutable snapshot of an entity.
type Version struct {
	ID            string            `json:"id"`
	EntityType    studio.EntityType `json:"entity_type"`
	EntityID      string            `json:"entity_id"`
	VersionNumber int               `json:"version_number"`
	Name          string            `json:"version_name,omitempty"`
	Snapshot      map[string]any    `json:"snapshot"`
	ChangeSummary string            `json:"change_summary,omitempty"`
	CreatedBy     string            `json:"created_by,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// CreateOptions carry the optional labels of a new version.
type CreateOptions struct {
	Name          string
	ChangeSummary string
	CreatedBy     string
}

// FieldDiff is one key of a version comparison.
type FieldDiff struct {
	Value1  any  `json:"value1"`
	Value2  any  `json:"value2"`
	Changed bool `json:"changed"`
}

// Comparison is a field-level diff of two versions of the same entity.
type Comparison struct {
	EntityType studio.EntityType    `json:"entity_type"`
	EntityID   string               `json:"entity_id"`
	Version1   int                  `json:"version1"`
	Version2   int                  `json:"version2"`
	Changed    []string             `json:"changed"`
	Fields     map[string]FieldDiff `json:"fields"`
}

// RestoreResult is the outcome of a restore: the entity as now stored and
// the version that records the restore.
type RestoreResult struct {
	Entity  any      `json:"entity"`
	Version *Version `json:"version"`
}

type Store struct {
	db        db.Querier
	validator *Validator
	logger    *slog.Logger
}

func NewStore(q db.Querier, logger *slog.Logger) (*Store, error) {
	v, err := NewValidator()
	if err != nil {
		return nil, err
	}
	return &Store{db: q, validator: v, logger: logging.WithComponent(logger, "versioning")}, nil
}

// CreateVersion appends a snapshot of an entity. A nil snapshot captures the
// entity's current state. Numbers are assigned max+1 per entity inside one
// transaction; the unique index rejects any concurrent duplicate.
func (s *Store) CreateVersion(ctx context.Context, t studio.EntityType, entityID string, snapshot map[string]any, opts CreateOptions) (*Version, error) {
	var v *Version
	err := db.RunInTx(ctx, s.db, func(q db.Querier) error {
		var err error
		v, err = s.createVersion(ctx, q, t, entityID, snapshot, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("version created", "entity_type", t, "entity_id", entityID, "version", v.VersionNumber)
	return v, nil
}

// RecordChange snapshots the entity's current state with a summary.
func (s *Store) RecordChange(ctx context.Context, t studio.EntityType, entityID, summary string) error {
	_, err := s.CreateVersion(ctx, t, entityID, nil, CreateOptions{ChangeSummary: summary})
	return err
}

func (s *Store) createVersion(ctx context.Context, q db.Querier, t studio.EntityType, entityID string, snapshot map[string]any, opts CreateOptions) (*Version, error) {
	adapter, err := lookup(t)
	if err != nil {
		return nil, err
	}
	repo := studio.NewRepository(q)

	exists, err := adapter.Exists(ctx, repo, entityID)
	if err != nil {
		return nil, fmt.Errorf("check %s %s: %w", t, entityID, err)
	}
	if !exists {
		return nil, fmt.Errorf("%s %s: %w", t, entityID, ErrEntityNotFound)
	}

	if snapshot == nil {
		if snapshot, err = adapter.Snapshot(ctx, repo, entityID); err != nil {
			return nil, fmt.Errorf("snapshot %s %s: %w", t, entityID, err)
		}
	}
	if err := s.validator.Validate(t, snapshot); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	var next int
	err = q.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version_number), 0) + 1 FROM versions WHERE entity_type = ? AND entity_id = ?
	`, string(t), entityID).Scan(&next)
	if err != nil {
		return nil, fmt.Errorf("next version number: %w", err)
	}

	v := &Version{
		ID:            studio.NewID(),
		EntityType:    t,
		EntityID:      entityID,
		VersionNumber: next,
		Name:          opts.Name,
		Snapshot:      snapshot,
		ChangeSummary: opts.ChangeSummary,
		CreatedBy:     opts.CreatedBy,
		CreatedAt:     time.Now(),
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO versions (id, entity_type, entity_id, version_number, version_name, snapshot, change_summary, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, v.ID, string(v.EntityType), v.EntityID, v.VersionNumber, nullString(v.Name), string(raw),
		nullString(v.ChangeSummary), nullString(v.CreatedBy), v.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert version: %w", err)
	}
	return v, nil
}

// ListVersions returns an entity's versions newest first.
func (s *Store) ListVersions(ctx context.Context, t studio.EntityType, entityID string) ([]*Version, error) {
	if _, err := lookup(t); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+versionColumns+` FROM versions
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY version_number DESC
	`, string(t), entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []*Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// GetVersion returns a version by id.
func (s *Store) GetVersion(ctx context.Context, id string) (*Version, error) {
	return getVersion(ctx, s.db, id)
}

func getVersion(ctx context.Context, q db.Querier, id string) (*Version, error) {
	row := q.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM versions WHERE id = ?`, id)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("version %s: %w", id, ErrVersionNotFound)
	}
	return v, err
}

// RestoreVersion overwrites the live entity with a version's snapshot and
// appends a new version recording the restore. Both writes share one
// transaction; a failure leaves the entity and its history untouched.
func (s *Store) RestoreVersion(ctx context.Context, versionID string) (*RestoreResult, error) {
	var result RestoreResult
	err := db.RunInTx(ctx, s.db, func(q db.Querier) error {
		target, err := getVersion(ctx, q, versionID)
		if err != nil {
			return err
		}
		adapter, err := lookup(target.EntityType)
		if err != nil {
			return err
		}
		if err := s.validator.Validate(target.EntityType, target.Snapshot); err != nil {
			return err
		}

		repo := studio.NewRepository(q)
		entity, err := adapter.Apply(ctx, repo, target.EntityID, target.Snapshot)
		if errors.Is(err, studio.ErrNotFound) {
			return fmt.Errorf("%s %s: %w", target.EntityType, target.EntityID, ErrEntityNotFound)
		}
		if err != nil {
			return fmt.Errorf("apply version %d: %w", target.VersionNumber, err)
		}

		v, err := s.createVersion(ctx, q, target.EntityType, target.EntityID, target.Snapshot, CreateOptions{
			ChangeSummary: fmt.Sprintf("restored to version %d", target.VersionNumber),
		})
		if err != nil {
			return err
		}
		result = RestoreResult{Entity: entity, Version: v}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("version restored",
		"entity_type", result.Version.EntityType,
		"entity_id", result.Version.EntityID,
		"new_version", result.Version.VersionNumber)
	return &result, nil
}

// CompareVersions diffs the snapshots of two versions of one entity.
func (s *Store) CompareVersions(ctx context.Context, id1, id2 string) (*Comparison, error) {
	v1, err := s.GetVersion(ctx, id1)
	if err != nil {
		return nil, err
	}
	v2, err := s.GetVersion(ctx, id2)
	if err != nil {
		return nil, err
	}
	if v1.EntityType != v2.EntityType || v1.EntityID != v2.EntityID {
		return nil, ErrCrossEntityComparison
	}

	c := &Comparison{
		EntityType: v1.EntityType,
		EntityID:   v1.EntityID,
		Version1:   v1.VersionNumber,
		Version2:   v2.VersionNumber,
		Changed:    []string{},
		Fields:     make(map[string]FieldDiff),
	}
	keys := make(map[string]struct{}, len(v1.Snapshot)+len(v2.Snapshot))
	for k := range v1.Snapshot {
		keys[k] = struct{}{}
	}
	for k := range v2.Snapshot {
		keys[k] = struct{}{}
	}
	for k := range keys {
		a, b := v1.Snapshot[k], v2.Snapshot[k]
		changed := !reflect.DeepEqual(a, b)
		c.Fields[k] = FieldDiff{Value1: a, Value2: b, Changed: changed}
		if changed {
			c.Changed = append(c.Changed, k)
		}
	}
	sort.Strings(c.Changed)
	return c, nil
}

const versionColumns = `id, entity_type, entity_id, version_number, version_name, snapshot, change_summary, created_by, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanVersion(sc scanner) (*Version, error) {
	var v Version
	var entityType, raw, createdAt string
	var name, summary, createdBy sql.NullString
	if err := sc.Scan(&v.ID, &entityType, &v.EntityID, &v.VersionNumber, &name, &raw, &summary, &createdBy, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &v.Snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot of version %s: %w", v.ID, err)
	}
	v.EntityType = studio.EntityType(entityType)
	v.Name = name.String
	v.ChangeSummary = summary.String
	v.CreatedBy = createdBy.String
	v.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &v, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
