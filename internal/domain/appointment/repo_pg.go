package appointment

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medibook/medibook/internal/platform/apperr"
	"github.com/medibook/medibook/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const apptCols = `a.id, a.patient_id, a.doctor_id, to_char(a.appointment_date, 'YYYY-MM-DD'),
	to_char(a.appointment_time, 'HH24:MI'), a.status, a.notes, a.rating, a.created_at`

func scanAppointment(row pgx.Row, extra ...interface{}) (*Appointment, error) {
	var a Appointment
	var status string
	var rating *int16
	dest := append([]interface{}{&a.ID, &a.PatientID, &a.DoctorID, &a.Date, &a.Time, &status, &a.Notes, &rating, &a.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	a.Status = Status(status)
	if rating != nil {
		v := int(*rating)
		a.Rating = &v
	}
	return &a, nil
}

// scopeClause renders scope as SQL predicates starting at placeholder $n.
func scopeClause(scope Scope, n int) (string, []interface{}) {
	var preds []string
	var args []interface{}
	if scope.PatientID != nil {
		preds = append(preds, fmt.Sprintf("a.patient_id = $%d", n+len(args)))
		args = append(args, *scope.PatientID)
	}
	if scope.DoctorID != nil {
		preds = append(preds, fmt.Sprintf("a.doctor_id = $%d", n+len(args)))
		args = append(args, *scope.DoctorID)
	}
	if len(preds) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(preds, " AND "), args
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, appointment_date, appointment_time, status, notes)
		VALUES ($1, $2, $3, $4::date, $5::time, $6, $7)
		RETURNING created_at`,
		a.ID, a.PatientID, a.DoctorID, a.Date, a.Time, string(a.Status), a.Notes,
	).Scan(&a.CreatedAt)
	return apperr.FromStore(err, "doctor")
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID, scope Scope) (*Appointment, error) {
	if !db.InTx(ctx) {
		return nil, fmt.Errorf("GetForUpdate requires a transaction")
	}
	clause, args := scopeClause(scope, 2)
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointments a WHERE a.id = $1`+clause+` FOR UPDATE`,
		append([]interface{}{id}, args...)...))
	return a, apperr.FromStore(err, "appointment")
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointments SET status = $3 WHERE id = $1 AND status = $2`,
		id, string(from), string(to))
	if err != nil {
		return apperr.FromStore(err, "appointment")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: appointment is no longer %s", apperr.ErrInvalidTransition, from)
	}
	return nil
}

func (r *repoPG) SetRating(ctx context.Context, id uuid.UUID, rating int) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET rating = $2
		WHERE id = $1 AND rating IS NULL AND status = 'completed'`,
		id, rating)
	if err != nil {
		return apperr.FromStore(err, "appointment")
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("appointment already rated")
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID, scope Scope) error {
	clause, args := scopeClause(scope, 2)
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM appointments a WHERE a.id = $1`+clause,
		append([]interface{}{id}, args...)...)
	if err != nil {
		return apperr.FromStore(err, "appointment")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment")
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, scope Scope, limit, offset int) ([]*View, int, error) {
	clause, args := scopeClause(scope, 1)
	where := ` WHERE TRUE` + clause

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments a`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.FromStore(err, "appointment")
	}

	n := len(args)
	query := `
		SELECT ` + apptCols + `,
			du.name, du.phone, d.specialization, pu.name, pu.email, pu.phone
		FROM appointments a
		JOIN doctors d ON d.id = a.doctor_id
		JOIN users du ON du.id = d.user_id
		JOIN users pu ON pu.id = a.patient_id` + where + fmt.Sprintf(`
		ORDER BY a.appointment_date DESC, a.appointment_time DESC, a.id
		LIMIT $%d OFFSET $%d`, n+1, n+2)

	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, apperr.FromStore(err, "appointment")
	}
	defer rows.Close()

	items := []*View{}
	for rows.Next() {
		var v View
		a, err := scanAppointment(rows, &v.DoctorName, &v.DoctorPhone, &v.Specialization, &v.PatientName, &v.PatientEmail, &v.PatientPhone)
		if err != nil {
			return nil, 0, apperr.FromStore(err, "appointment")
		}
		v.Appointment = *a
		items = append(items, &v)
	}
	return items, total, apperr.FromStore(rows.Err(), "appointment")
}
