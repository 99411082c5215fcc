package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrDuplicatePatient = errors.New("a patient with this national id already exists")

// Registration is an accepted intake record stored as a patient.
type Registration struct {
	PatientID uuid.UUID `json:"patient_id"`
	Record    Record    `json:"record"`
	CreatedAt time.Time `json:"created_at"`
}

type Store interface {
	SavePatient(ctx context.Context, id uuid.UUID, r Record) (*Registration, error)
}

type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgStore struct {
	db DB
}

func NewPgStore(db DB) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) SavePatient(ctx context.Context, id uuid.UUID, r Record) (*Registration, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal intake: %w", err)
	}

	query := `
		INSERT INTO patients (id, name, email, birth_date, national_id, phone, intake, created_at, updated_at)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, now(), now())
		RETURNING created_at
	`
	var createdAt time.Time
	err = s.db.QueryRow(ctx, query, id, r.FullName, r.Email, r.BirthDate, r.NationalID, r.Phone, payload).
		Scan(&createdAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicatePatient
		}
		return nil, fmt.Errorf("insert patient: %w", err)
	}

	return &Registration{PatientID: id, Record: r, CreatedAt: createdAt}, nil
}

// MemoryStore keeps registrations in process, keyed by national id.
type MemoryStore struct {
	mu    sync.Mutex
	byNID map[string]Registration
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byNID: map[string]Registration{}, now: time.Now}
}

func (s *MemoryStore) SavePatient(_ context.Context, id uuid.UUID, r Record) (*Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byNID[r.NationalID]; ok {
		return nil, ErrDuplicatePatient
	}
	reg := Registration{PatientID: id, Record: r, CreatedAt: s.now()}
	s.byNID[r.NationalID] = reg
	return &reg, nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byNID)
}
