package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/dcia/internal/models"
	"github.com/hyperjump/dcia/internal/vector"
)

const relHasEvidence = "HAS_EVIDENCE"

// SQLiteStore implements Store on a single SQLite file. Nodes carry one category label,
// relationships live in an edge table and embeddings are little-endian float32 blobs
// scanned exactly on query.
type SQLiteStore struct {
	db    *sql.DB
	path  string
	index IndexSpec
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string, index IndexSpec) (*SQLiteStore, error) {
	if index.Dimensions <= 0 {
		return nil, fmt.Errorf("index dimensions must be positive")
	}
	inMemory := dbPath == ":memory:"
	if !inMemory {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db, path: dbPath, index: index}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		significance TEXT,
		embedding BLOB,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (label, name)
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_label ON nodes(label);

	CREATE TABLE IF NOT EXISTS edges (
		from_id TEXT NOT NULL,
		type TEXT NOT NULL,
		to_id TEXT NOT NULL,
		PRIMARY KEY (from_id, type, to_id),
		FOREIGN KEY (from_id) REFERENCES nodes(id) ON DELETE CASCADE,
		FOREIGN KEY (to_id) REFERENCES nodes(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS vector_indexes (
		name TEXT PRIMARY KEY,
		dimensions INTEGER NOT NULL,
		similarity TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

func (s *SQLiteStore) Candidates(ctx context.Context) ([]models.Candidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, description FROM nodes
		 WHERE label IN (?, ?) AND description IS NOT NULL AND description != '' AND embedding IS NULL
		 ORDER BY name`,
		models.LabelEvidenceItem, models.LabelCrimeSubtype,
	)
	if err != nil {
		return nil, fmt.Errorf("querying nodes without embeddings: %w", err)
	}
	defer rows.Close()

	var out []models.Candidate
	for rows.Next() {
		var c models.Candidate
		if err := rows.Scan(&c.NodeID, &c.Text); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SetEmbedding(ctx context.Context, id string, vec []float32) (bool, error) {
	if len(vec) != s.index.Dimensions {
		return false, fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(vec), s.index.Dimensions)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE nodes SET embedding = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		vector.Encode(vec), id,
	)
	if err != nil {
		return false, fmt.Errorf("updating embedding for node %s: %w", id, err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) VectorIndexExists(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vector_indexes WHERE name = ?`, s.index.Name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking vector index: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) CreateVectorIndex(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO vector_indexes (name, dimensions, similarity) VALUES (?, ?, ?)`,
		s.index.Name, s.index.Dimensions, s.index.Similarity,
	)
	if err != nil {
		return fmt.Errorf("creating vector index %s: %w", s.index.Name, err)
	}
	return nil
}

func (s *SQLiteStore) QueryNodes(ctx context.Context, vec []float32, limit int) ([]models.RetrievalResult, error) {
	if len(vec) != s.index.Dimensions {
		return nil, fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(vec), s.index.Dimensions)
	}
	exists, err := s.VectorIndexExists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNoVectorIndex, s.index.Name)
	}
	if limit <= 0 {
		return []models.RetrievalResult{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, name, COALESCE(description, ''), COALESCE(significance, ''), embedding
		 FROM nodes WHERE embedding IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var out []models.RetrievalResult
	for rows.Next() {
		var (
			r     models.RetrievalResult
			label string
			blob  []byte
		)
		if err := rows.Scan(&r.NodeID, &label, &r.Name, &r.Description, &r.Significance, &blob); err != nil {
			return nil, err
		}
		emb, err := vector.Decode(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding of node %s: %w", r.NodeID, err)
		}
		if len(emb) != len(vec) {
			continue
		}
		r.Labels = []string{label}
		r.Score = vector.CosineScore(vec, emb)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []models.RetrievalResult{}
	}
	return out, nil
}

func (s *SQLiteStore) CrimeSubtypes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM nodes WHERE label = ? ORDER BY name`, models.LabelCrimeSubtype)
	if err != nil {
		return nil, fmt.Errorf("listing crime subtypes: %w", err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountSubtypes(ctx context.Context, name string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM nodes WHERE label = ? AND name = ?`, models.LabelCrimeSubtype, name,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting crime subtypes: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) FindSubtypeFold(ctx context.Context, name string) (string, bool, error) {
	names, err := s.CrimeSubtypes(ctx)
	if err != nil {
		return "", false, err
	}
	for _, n := range names {
		if foldEqual(n, name) {
			return n, true, nil
		}
	}
	return "", false, nil
}

func (s *SQLiteStore) Evidence(ctx context.Context, subtype string, device models.Device) ([]models.EvidenceItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.name, COALESCE(e.significance, ''), l.name
		 FROM nodes st
		 JOIN edges he ON he.from_id = st.id AND he.type = ?
		 JOIN nodes e ON e.id = he.to_id AND e.label = ?
		 LEFT JOIN edges le ON le.from_id = e.id AND le.type = ?
		 LEFT JOIN nodes l ON l.id = le.to_id AND l.label = ?
		 WHERE st.label = ? AND st.name = ?
		 ORDER BY e.name, l.name`,
		relHasEvidence, models.LabelEvidenceItem, device.Relationship(), models.LabelPossibleLocation,
		models.LabelCrimeSubtype, subtype,
	)
	if err != nil {
		return nil, fmt.Errorf("fetching evidence for %s: %w", subtype, err)
	}
	defer rows.Close()

	out := []models.EvidenceItem{}
	for rows.Next() {
		var (
			name, significance string
			location           sql.NullString
		)
		if err := rows.Scan(&name, &significance, &location); err != nil {
			return nil, err
		}
		if len(out) == 0 || out[len(out)-1].Name != name {
			out = append(out, models.EvidenceItem{Name: name, Significance: significance, Locations: []string{}})
		}
		if location.Valid {
			last := &out[len(out)-1]
			last.Locations = append(last.Locations, location.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortEvidence(out)
	return out, nil
}

func (s *SQLiteStore) Nodes(ctx context.Context) ([]models.Node, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, name, COALESCE(description, ''), COALESCE(significance, ''), embedding IS NOT NULL
		 FROM nodes ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	defer rows.Close()
	var out []models.Node
	for rows.Next() {
		var (
			n     models.Node
			label string
		)
		if err := rows.Scan(&n.ID, &label, &n.Name, &n.Description, &n.Significance, &n.Embedded); err != nil {
			return nil, err
		}
		n.Labels = []string{label}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Import(ctx context.Context, c *models.Catalog) (models.ImportStats, error) {
	var stats models.ImportStats
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, sub := range c.CrimeSubtypes {
		subID, changed, err := upsertNode(ctx, tx, models.LabelCrimeSubtype, sub.Name, sub.Description, "")
		if err != nil {
			return stats, fmt.Errorf("importing crime subtype %s: %w", sub.Name, err)
		}
		stats.Subtypes++
		if changed {
			stats.Invalidated++
		}
		for _, ev := range sub.Evidence {
			evID, changed, err := upsertNode(ctx, tx, models.LabelEvidenceItem, ev.Name, ev.Description, ev.Significance)
			if err != nil {
				return stats, fmt.Errorf("importing evidence %s: %w", ev.Name, err)
			}
			stats.Evidence++
			if changed {
				stats.Invalidated++
			}
			if err := insertEdge(ctx, tx, subID, relHasEvidence, evID); err != nil {
				return stats, err
			}
			for _, device := range models.Devices {
				for _, path := range ev.Locations[device] {
					locID, _, err := upsertNode(ctx, tx, models.LabelPossibleLocation, path, "", "")
					if err != nil {
						return stats, fmt.Errorf("importing location %s: %w", path, err)
					}
					if err := insertEdge(ctx, tx, evID, device.Relationship(), locID); err != nil {
						return stats, err
					}
					stats.Locations++
				}
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return stats, err
	}
	return stats, nil
}

// upsertNode inserts or updates the node (label, name). An existing node whose description
// changes loses its embedding.
func upsertNode(ctx context.Context, tx *sql.Tx, label, name, description, significance string) (string, bool, error) {
	var (
		id  string
		old sql.NullString
	)
	err := tx.QueryRowContext(ctx,
		`SELECT id, description FROM nodes WHERE label = ? AND name = ?`, label, name,
	).Scan(&id, &old)
	if errors.Is(err, sql.ErrNoRows) {
		id = uuid.NewString()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO nodes (id, label, name, description, significance) VALUES (?, ?, ?, ?, ?)`,
			id, label, name, nullString(description), nullString(significance),
		)
		return id, false, err
	}
	if err != nil {
		return "", false, err
	}

	changed := old.Valid && old.String != "" && old.String != description
	if changed {
		_, err = tx.ExecContext(ctx,
			`UPDATE nodes SET description = ?, significance = ?, embedding = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			nullString(description), nullString(significance), id)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE nodes SET description = ?, significance = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			nullString(description), nullString(significance), id)
	}
	return id, changed, err
}

func insertEdge(ctx context.Context, tx *sql.Tx, from, typ, to string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO edges (from_id, type, to_id) VALUES (?, ?, ?)`, from, typ, to)
	if err != nil {
		return fmt.Errorf("linking %s -[%s]-> %s: %w", from, typ, to, err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// DeleteNode removes a node and its relationships.
func (s *SQLiteStore) DeleteNode(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id)
	return err
}

// SizeBytes returns the on-disk size of the database including WAL and shared-memory files.
// Missing files contribute 0.
func (s *SQLiteStore) SizeBytes() (int64, error) {
	if s.path == ":memory:" {
		return 0, nil
	}
	var total int64
	for _, p := range []string{s.path, s.path + "-wal", s.path + "-shm"} {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
