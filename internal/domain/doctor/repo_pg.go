package doctor

import (
	"context"
	"encoding/json"
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

const doctorCols = `d.id, d.user_id, u.name, u.email, u.phone, d.specialization, d.bio,
	d.experience, d.rating::float8, d.consultation_fee::float8, d.available_slots,
	u.is_blocked, d.created_at`

const doctorFrom = ` FROM doctors d JOIN users u ON u.id = d.user_id`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var slots []byte
	err := row.Scan(&d.ID, &d.UserID, &d.Name, &d.Email, &d.Phone, &d.Specialization, &d.Bio,
		&d.Experience, &d.Rating, &d.ConsultationFee, &slots, &d.Blocked, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	if d.Availability, err = decodeWindows(slots); err != nil {
		return nil, err
	}
	return &d, nil
}

func decodeWindows(raw []byte) ([]Window, error) {
	windows := []Window{}
	if len(raw) == 0 {
		return windows, nil
	}
	if err := json.Unmarshal(raw, &windows); err != nil {
		return nil, fmt.Errorf("decode available_slots: %w", err)
	}
	return windows, nil
}

func (r *repoPG) Create(ctx context.Context, d *Doctor) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Availability == nil {
		d.Availability = []Window{}
	}
	slots, err := json.Marshal(d.Availability)
	if err != nil {
		return fmt.Errorf("encode available_slots: %w", err)
	}
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctors (id, user_id, specialization, bio, experience, consultation_fee, available_slots)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		d.ID, d.UserID, d.Specialization, d.Bio, d.Experience, d.ConsultationFee, slots,
	).Scan(&d.CreatedAt)
	return apperr.FromStore(err, "doctor")
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+doctorFrom+` WHERE d.id = $1`, id))
	return d, apperr.FromStore(err, "doctor")
}

func (r *repoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	d, err := scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+doctorFrom+` WHERE d.user_id = $1`, userID))
	return d, apperr.FromStore(err, "doctor")
}

func (r *repoPG) UpdateProfile(ctx context.Context, id uuid.UUID, u ProfileUpdate) (*Doctor, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctors SET
			specialization   = COALESCE($2, specialization),
			bio              = COALESCE($3, bio),
			experience       = COALESCE($4, experience),
			consultation_fee = COALESCE($5, consultation_fee)
		WHERE id = $1`,
		id, u.Specialization, u.Bio, u.Experience, u.ConsultationFee)
	if err != nil {
		return nil, apperr.FromStore(err, "doctor")
	}
	if tag.RowsAffected() == 0 {
		return nil, apperr.NotFound("doctor")
	}
	return r.GetByID(ctx, id)
}

func (r *repoPG) SetAvailability(ctx context.Context, id uuid.UUID, windows []Window) error {
	if windows == nil {
		windows = []Window{}
	}
	slots, err := json.Marshal(windows)
	if err != nil {
		return fmt.Errorf("encode available_slots: %w", err)
	}
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE doctors SET available_slots = $2 WHERE id = $1`, id, slots)
	if err != nil {
		return apperr.FromStore(err, "doctor")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("doctor")
	}
	return nil
}

func (r *repoPG) GetAvailability(ctx context.Context, id uuid.UUID) ([]Window, error) {
	var slots []byte
	if err := r.conn(ctx).QueryRow(ctx, `SELECT available_slots FROM doctors WHERE id = $1`, id).Scan(&slots); err != nil {
		return nil, apperr.FromStore(err, "doctor")
	}
	return decodeWindows(slots)
}

func (r *repoPG) ListDirectory(ctx context.Context, specialization string) ([]*Doctor, error) {
	query := `SELECT ` + doctorCols + doctorFrom + ` WHERE u.is_blocked = FALSE`
	var args []interface{}
	if s := strings.TrimSpace(specialization); s != "" {
		query += ` AND d.specialization ILIKE '%' || $1 || '%'`
		args = append(args, escapeLike(s))
	}
	query += ` ORDER BY d.rating DESC, d.id`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.FromStore(err, "doctor")
	}
	defer rows.Close()

	items := []*Doctor{}
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, apperr.FromStore(err, "doctor")
		}
		items = append(items, d)
	}
	return items, apperr.FromStore(rows.Err(), "doctor")
}

// escapeLike neutralises LIKE wildcards in user input.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *repoPG) LockRating(ctx context.Context, id uuid.UUID) (int, error) {
	if !db.InTx(ctx) {
		return 0, fmt.Errorf("LockRating requires a transaction")
	}
	var tenths int
	err := r.conn(ctx).QueryRow(ctx, `SELECT (rating * 10)::int FROM doctors WHERE id = $1 FOR UPDATE`, id).Scan(&tenths)
	return tenths, apperr.FromStore(err, "doctor")
}

func (r *repoPG) UpdateRating(ctx context.Context, id uuid.UUID, tenths int) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE doctors SET rating = $2::numeric / 10 WHERE id = $1`, id, tenths)
	if err != nil {
		return apperr.FromStore(err, "doctor")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("doctor")
	}
	return nil
}
