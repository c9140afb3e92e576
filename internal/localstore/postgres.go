package localstore

import (
	"database/sql"
	"log"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store on PostgreSQL. All collections share one
// records table keyed by (collection, id) with the three secondary index
// columns denormalized alongside the JSON body.
type PostgresStore struct {
	db *sql.DB
}

// ConnectPostgres opens and pings a PostgreSQL connection.
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the cache tables if they do not exist.
func (s *PostgresStore) EnsureSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS local_records (
			collection  TEXT NOT NULL,
			id          TEXT NOT NULL,
			data        JSONB NOT NULL,
			status      TEXT NOT NULL DEFAULT '',
			branch_id   TEXT NOT NULL DEFAULT '',
			business_id TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (collection, id)
		)`,
		`CREATE INDEX IF NOT EXISTS local_records_status_idx ON local_records (collection, status)`,
		`CREATE INDEX IF NOT EXISTS local_records_branch_idx ON local_records (collection, branch_id)`,
		`CREATE INDEX IF NOT EXISTS local_records_business_idx ON local_records (collection, business_id)`,
		`CREATE TABLE IF NOT EXISTS local_meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) Get(collection, id string) (Record, bool) {
	row := s.db.QueryRow(
		`SELECT id, data, status, branch_id, business_id, created_at
		 FROM local_records WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, false
	}
	if err != nil {
		log.Printf("[LocalStore] get %s/%s: %v", collection, id, err)
		return Record{}, false
	}
	return rec, true
}

func (s *PostgresStore) Put(collection string, rec Record) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO local_records (collection, id, data, status, branch_id, business_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (collection, id) DO UPDATE SET
			data = EXCLUDED.data,
			status = EXCLUDED.status,
			branch_id = EXCLUDED.branch_id,
			business_id = EXCLUDED.business_id`,
		collection, rec.ID, []byte(rec.Data), rec.Status, rec.BranchID, rec.BusinessID, rec.CreatedAt,
	)
	if err != nil {
		log.Printf("[LocalStore] put %s/%s: %v", collection, rec.ID, err)
	}
}

func (s *PostgresStore) Delete(collection, id string) {
	if _, err := s.db.Exec(
		`DELETE FROM local_records WHERE collection = $1 AND id = $2`,
		collection, id,
	); err != nil {
		log.Printf("[LocalStore] delete %s/%s: %v", collection, id, err)
	}
}

func (s *PostgresStore) List(collection string) []Record {
	return s.query(
		`SELECT id, data, status, branch_id, business_id, created_at
		 FROM local_records WHERE collection = $1 ORDER BY created_at ASC`,
		collection,
	)
}

func (s *PostgresStore) QueryByIndex(collection, index, value string) []Record {
	var column string
	switch index {
	case IndexStatus:
		column = "status"
	case IndexBranch:
		column = "branch_id"
	case IndexBusiness:
		column = "business_id"
	default:
		log.Printf("[LocalStore] unknown index %q", index)
		return nil
	}
	return s.query(
		`SELECT id, data, status, branch_id, business_id, created_at
		 FROM local_records WHERE collection = $1 AND `+column+` = $2
		 ORDER BY created_at ASC`,
		collection, value,
	)
}

func (s *PostgresStore) Clear(collection string) {
	if _, err := s.db.Exec(`DELETE FROM local_records WHERE collection = $1`, collection); err != nil {
		log.Printf("[LocalStore] clear %s: %v", collection, err)
	}
}

func (s *PostgresStore) SetMeta(key, value string) {
	_, err := s.db.Exec(
		`INSERT INTO local_meta (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value,
	)
	if err != nil {
		log.Printf("[LocalStore] set meta %s: %v", key, err)
	}
}

func (s *PostgresStore) GetMeta(key string) (string, bool) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM local_meta WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false
	}
	if err != nil {
		log.Printf("[LocalStore] get meta %s: %v", key, err)
		return "", false
	}
	return value, true
}

func (s *PostgresStore) query(stmt string, args ...any) []Record {
	rows, err := s.db.Query(stmt, args...)
	if err != nil {
		log.Printf("[LocalStore] query: %v", err)
		return nil
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			log.Printf("[LocalStore] scan: %v", err)
			continue
		}
		out = append(out, rec)
	}
	return out
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var data []byte
	if err := row.Scan(&rec.ID, &data, &rec.Status, &rec.BranchID, &rec.BusinessID, &rec.CreatedAt); err != nil {
		return Record{}, err
	}
	rec.Data = data
	return rec, nil
}
