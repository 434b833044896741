package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/vaccination-api/internal/model"
	"github.com/jwalitptl/vaccination-api/internal/repository"
	apperrors "github.com/jwalitptl/vaccination-api/pkg/errors"
)

type vaccinationRepository struct {
	BaseRepository
}

func NewVaccinationRepository(db *sqlx.DB) repository.VaccinationRepository {
	return &vaccinationRepository{NewBaseRepository(db)}
}

func (r *vaccinationRepository) Create(ctx context.Context, rec *model.VaccinationRecord) error {
	query := `
		INSERT INTO vaccination_records (
			id, document_number, full_name, sex, region, sub_region, position,
			allergies, contraindication, employment_status, active_year,
			vaccine_type, origin, responsible_nurse, created_at, updated_at
		) VALUES (
			:id, :document_number, :full_name, :sex, :region, :sub_region, :position,
			:allergies, :contraindication, :employment_status, :active_year,
			:vaccine_type, :origin, :responsible_nurse, :created_at, :updated_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("failed to create vaccination record: %w", err)
	}
	return nil
}

func (r *vaccinationRepository) Get(ctx context.Context, id uuid.UUID) (*model.VaccinationRecord, error) {
	var rec model.VaccinationRecord
	err := r.db.GetContext(ctx, &rec, `SELECT * FROM vaccination_records WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("vaccination record", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vaccination record: %w", err)
	}
	return &rec, nil
}

func recordConditions(f model.RecordFilters) *where {
	w := &where{}
	if q := strings.TrimSpace(f.Query); q != "" {
		pattern := "%" + q + "%"
		w.args = append(w.args, pattern)
		n := len(w.args)
		w.conds = append(w.conds, fmt.Sprintf("(document_number ILIKE $%d OR full_name ILIKE $%d)", n, n))
	}
	if v := strings.TrimSpace(f.Region); v != "" {
		w.add("UPPER(TRIM(region)) = UPPER($%d)", v)
	}
	if v := strings.TrimSpace(f.SubRegion); v != "" {
		w.add("UPPER(TRIM(sub_region)) = UPPER($%d)", v)
	}
	if v := strings.TrimSpace(f.Allergies); v != "" {
		w.add("allergies ILIKE $%d", "%"+v+"%")
	}
	if !f.StartDate.IsZero() {
		w.add("created_at >= $%d", f.StartDate)
	}
	if !f.EndDate.IsZero() {
		w.add("created_at < $%d", f.EndDate.AddDate(0, 0, 1))
	}
	return w
}

func (r *vaccinationRepository) SearchDocuments(ctx context.Context, filters model.RecordFilters) ([]string, int64, error) {
	w := recordConditions(filters)
	base := " FROM vaccination_records" + w.String()

	var total int64
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(DISTINCT TRIM(document_number))"+base, w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count workers: %w", err)
	}

	offset, limit := filters.Page()
	query := "SELECT TRIM(document_number)" + base +
		" GROUP BY TRIM(document_number) ORDER BY MIN(full_name), TRIM(document_number)" +
		" LIMIT " + w.next(limit) + " OFFSET " + w.next(offset)

	var documents []string
	if err := r.db.SelectContext(ctx, &documents, query, w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to search workers: %w", err)
	}
	return documents, total, nil
}

func (r *vaccinationRepository) ListByDocuments(ctx context.Context, documents []string) ([]*model.VaccinationRecord, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	query := `
		SELECT * FROM vaccination_records
		WHERE TRIM(document_number) = ANY($1)
		ORDER BY TRIM(document_number), created_at, id`

	var records []*model.VaccinationRecord
	if err := r.db.SelectContext(ctx, &records, query, pq.Array(documents)); err != nil {
		return nil, fmt.Errorf("failed to list vaccination records: %w", err)
	}
	return records, nil
}

func (r *vaccinationRepository) ListDocumentsAfter(ctx context.Context, after string, limit int) ([]string, error) {
	query := `
		SELECT DISTINCT TRIM(document_number) AS document_number
		FROM vaccination_records
		WHERE TRIM(document_number) > $1
		ORDER BY document_number
		LIMIT $2`

	var documents []string
	if err := r.db.SelectContext(ctx, &documents, query, after, limit); err != nil {
		return nil, fmt.Errorf("failed to page documents: %w", err)
	}
	return documents, nil
}

func (r *vaccinationRepository) ListForReport(ctx context.Context, filters model.ReportFilters) ([]*model.VaccinationRecord, error) {
	w := recordConditions(model.RecordFilters{
		Region:    filters.Region,
		SubRegion: filters.SubRegion,
		StartDate: filters.StartDate,
		EndDate:   filters.EndDate,
	})
	query := "SELECT * FROM vaccination_records" + w.String() + " ORDER BY created_at, id"

	var records []*model.VaccinationRecord
	if err := r.db.SelectContext(ctx, &records, query, w.args...); err != nil {
		return nil, fmt.Errorf("failed to list report rows: %w", err)
	}
	return records, nil
}

func (r *vaccinationRepository) ListLocations(ctx context.Context, offset, limit int) ([]model.LocationRow, error) {
	query := `
		SELECT DISTINCT region, sub_region
		FROM vaccination_records
		ORDER BY region, sub_region
		LIMIT $1 OFFSET $2`

	var rows []model.LocationRow
	if err := r.db.SelectContext(ctx, &rows, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	return rows, nil
}

func (r *vaccinationRepository) UpdateSlot(ctx context.Context, id uuid.UUID, slot model.DoseSlot, raw model.RawSlot, responsible string) error {
	if !slot.Valid() {
		return apperrors.BadRequest(fmt.Sprintf("invalid slot %d", slot), nil)
	}
	date, origin, obs, typ := model.SlotColumns(slot)
	query := fmt.Sprintf(`
		UPDATE vaccination_records
		SET %s = $1, %s = $2, %s = $3, %s = $4,
			responsible_nurse = COALESCE($5, responsible_nurse),
			updated_at = NOW()
		WHERE id = $6`, date, origin, obs, typ)

	result, err := r.db.ExecContext(ctx, query,
		model.Ref(raw.Date),
		model.Ref(raw.Origin),
		model.Ref(raw.Observation),
		model.Ref(raw.Subtype),
		model.Ref(responsible),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", slot, err)
	}
	return expectOne(result, "vaccination record")
}

func (r *vaccinationRepository) UpdatePerson(ctx context.Context, document string, req *model.UpdateWorkerRequest) (int64, error) {
	var (
		sets []string
		args []interface{}
	)
	set := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if req.FullName != nil {
		set("full_name", *req.FullName)
	}
	if req.Sex != nil {
		set("sex", *req.Sex)
	}
	if req.Region != nil {
		set("region", *req.Region)
	}
	if req.SubRegion != nil {
		set("sub_region", *req.SubRegion)
	}
	if req.Position != nil {
		set("position", *req.Position)
	}
	if req.Allergies != nil {
		set("allergies", *req.Allergies)
	}
	if req.Contraindication != nil {
		set("contraindication", *req.Contraindication)
	}
	if req.EmploymentStatus != nil {
		set("employment_status", *req.EmploymentStatus)
	}
	if req.ActiveYear != nil {
		set("active_year", *req.ActiveYear)
	}
	if len(sets) == 0 {
		return 0, nil
	}

	args = append(args, strings.TrimSpace(document))
	query := fmt.Sprintf(
		"UPDATE vaccination_records SET %s, updated_at = NOW() WHERE TRIM(document_number) = $%d",
		strings.Join(sets, ", "), len(args),
	)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update worker: %w", err)
	}
	return result.RowsAffected()
}

func (r *vaccinationRepository) UpdateValidation(ctx context.Context, id uuid.UUID, text string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE vaccination_records SET validation_text = $1 WHERE id = $2`,
		text, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update validation text: %w", err)
	}
	return expectOne(result, "vaccination record")
}

func (r *vaccinationRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func expectOne(result sql.Result, resource string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return apperrors.NotFound(resource, nil)
	}
	return nil
}
