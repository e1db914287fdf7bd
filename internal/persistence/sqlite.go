package persistence

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/berfenger/healthrecorder/internal/core/domain"
	"github.com/berfenger/healthrecorder/internal/core/port"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteMachineRepository keeps one JSON document per machine.
type SQLiteMachineRepository struct {
	db     *sql.DB
	now    func() time.Time
	logger *zap.Logger
}

var _ port.MachineRepository = (*SQLiteMachineRepository)(nil)

func OpenSQLite(path string, logger *zap.Logger) (*SQLiteMachineRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	// single writer, avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return NewSQLiteMachineRepository(db, logger), nil
}

func NewSQLiteMachineRepository(db *sql.DB, logger *zap.Logger) *SQLiteMachineRepository {
	return &SQLiteMachineRepository{
		db:     db,
		now:    time.Now,
		logger: logger.With(zap.String("repository", "sqlite")),
	}
}

func (r *SQLiteMachineRepository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *SQLiteMachineRepository) FetchMachines(ctx context.Context) ([]domain.Machine, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT document FROM machines ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query machines: %w", err)
	}
	defer rows.Close()

	machines := []domain.Machine{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan machine: %w", err)
		}
		var m domain.Machine
		if err := json.Unmarshal([]byte(doc), &m); err != nil {
			return nil, fmt.Errorf("decode machine: %w", err)
		}
		machines = append(machines, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate machines: %w", err)
	}
	return machines, nil
}

// UpdateMachine replaces the stored document. Unknown ids yield domain.ErrMachineNotFound.
func (r *SQLiteMachineRepository) UpdateMachine(ctx context.Context, machine domain.Machine) (domain.Machine, error) {
	doc, err := json.Marshal(machine)
	if err != nil {
		return domain.Machine{}, fmt.Errorf("encode machine: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		"UPDATE machines SET name = ?, document = ?, updated_at = ? WHERE id = ?",
		machine.Name, string(doc), r.now().UnixMilli(), machine.Id)
	if err != nil {
		return domain.Machine{}, fmt.Errorf("update machine %s: %w", machine.Id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Machine{}, fmt.Errorf("update machine %s: %w", machine.Id, err)
	}
	if n == 0 {
		return domain.Machine{}, fmt.Errorf("%w: %s", domain.ErrMachineNotFound, machine.Id)
	}
	r.logger.Debug("machine updated", zap.String("id", machine.Id))
	return machine, nil
}

// Seed inserts machines only when the table is still empty.
func (r *SQLiteMachineRepository) Seed(ctx context.Context, machines []domain.Machine) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM machines").Scan(&count); err != nil {
		return 0, fmt.Errorf("count machines: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin seed: %w", err)
	}
	now := r.now().UnixMilli()
	for _, m := range machines {
		doc, err := json.Marshal(m)
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("encode machine %s: %w", m.Id, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO machines (id, name, document, updated_at) VALUES (?, ?, ?, ?)",
			m.Id, m.Name, string(doc), now); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("insert machine %s: %w", m.Id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	r.logger.Info("machines seeded", zap.Int("count", len(machines)))
	return len(machines), nil
}

// LoadSeedFile reads a JSON array of machine documents.
func LoadSeedFile(path string) ([]domain.Machine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var machines []domain.Machine
	if err := json.Unmarshal(data, &machines); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	for _, m := range machines {
		if m.Id == "" {
			return nil, errors.New("decode seed file: machine without id")
		}
	}
	return machines, nil
}
