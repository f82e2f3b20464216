package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rpattn/pawlog/internal/db"
	"github.com/rpattn/pawlog/internal/domain"
)

type healthRecordRepository struct {
	db db.Querier
}

// NewHealthRecordRepository creates a repository for timeline records
func NewHealthRecordRepository(q db.Querier) HealthRecordRepository {
	return &healthRecordRepository{db: q}
}

const recordColumns = `id, pet_id, owner_id, record_type, title, notes, occurred_at, next_due_at, value, created_at, updated_at`

func scanRecord(row pgx.Row) (domain.HealthRecord, error) {
	var rec domain.HealthRecord
	var recordType string
	err := row.Scan(&rec.ID, &rec.PetID, &rec.OwnerID, &recordType, &rec.Title, &rec.Notes,
		&rec.OccurredAt, &rec.NextDueAt, &rec.Value, &rec.CreatedAt, &rec.UpdatedAt)
	rec.Type = domain.RecordType(recordType)
	return rec, err
}

func recordArgs(rec domain.HealthRecord) []any {
	return []any{
		rec.ID, rec.PetID, rec.OwnerID, string(rec.Type), rec.Title, rec.Notes,
		rec.OccurredAt, rec.NextDueAt, rec.Value, rec.CreatedAt, rec.UpdatedAt,
	}
}

const insertRecordSQL = `INSERT INTO health_records (` + recordColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

func (r *healthRecordRepository) Create(ctx context.Context, record domain.HealthRecord) (domain.HealthRecord, error) {
	created, err := scanRecord(r.db.QueryRow(ctx, insertRecordSQL+` RETURNING `+recordColumns, recordArgs(record)...))
	if err != nil {
		return domain.HealthRecord{}, mapError("create health record", err)
	}
	return created, nil
}

// CreateBatch inserts all records in a single transaction.
func (r *healthRecordRepository) CreateBatch(ctx context.Context, records []domain.HealthRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	inserted := 0
	err := db.WithTx(ctx, r.db, nil, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, rec := range records {
			batch.Queue(insertRecordSQL, recordArgs(rec)...)
		}
		results := tx.SendBatch(ctx, batch)
		for range records {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return mapError("insert health record batch", err)
			}
			inserted++
		}
		return results.Close()
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *healthRecordRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.HealthRecord, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM health_records WHERE id = $1`, id))
	if err != nil {
		return domain.HealthRecord{}, mapError("get health record", err)
	}
	return rec, nil
}

func (r *healthRecordRepository) ListByPet(ctx context.Context, petID uuid.UUID) ([]domain.HealthRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+recordColumns+` FROM health_records WHERE pet_id = $1 ORDER BY occurred_at DESC, created_at DESC`, petID)
	if err != nil {
		return nil, mapError("list health records", err)
	}
	defer rows.Close()

	records := []domain.HealthRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, mapError("scan health record", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list health records", err)
	}
	return records, nil
}

func (r *healthRecordRepository) Update(ctx context.Context, record domain.HealthRecord) (domain.HealthRecord, error) {
	updated, err := scanRecord(r.db.QueryRow(ctx,
		`UPDATE health_records SET record_type = $2, title = $3, notes = $4, occurred_at = $5,
		        next_due_at = $6, value = $7, updated_at = $8
		 WHERE id = $1
		 RETURNING `+recordColumns,
		record.ID, string(record.Type), record.Title, record.Notes, record.OccurredAt,
		record.NextDueAt, record.Value, record.UpdatedAt))
	if err != nil {
		return domain.HealthRecord{}, mapError("update health record", err)
	}
	return updated, nil
}

func (r *healthRecordRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM health_records WHERE id = $1`, id)
	if err != nil {
		return mapError("delete health record", err)
	}
	if tag.RowsAffected() == 0 {
		return mapError("delete health record", pgx.ErrNoRows)
	}
	return nil
}

func (r *healthRecordRepository) CountByPets(ctx context.Context, petIDs []uuid.UUID) (map[uuid.UUID]map[domain.RecordType]int, error) {
	result := make(map[uuid.UUID]map[domain.RecordType]int, len(petIDs))
	if len(petIDs) == 0 {
		return result, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT pet_id, record_type, count(*) FROM health_records
		 WHERE pet_id = ANY($1) GROUP BY pet_id, record_type`, petIDs)
	if err != nil {
		return nil, mapError("count health records", err)
	}
	defer rows.Close()

	for rows.Next() {
		var petID uuid.UUID
		var recordType string
		var count int
		if err := rows.Scan(&petID, &recordType, &count); err != nil {
			return nil, mapError("scan health record count", err)
		}
		if result[petID] == nil {
			result[petID] = map[domain.RecordType]int{}
		}
		result[petID][domain.RecordType(recordType)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("count health records", err)
	}
	return result, nil
}
