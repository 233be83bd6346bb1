package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medibook/medibook/internal/platform/apperr"
	"github.com/medibook/medibook/internal/platform/auth"
	"github.com/medibook/medibook/internal/platform/db"
)

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository { return &userRepoPG{pool: pool} }

func (r *userRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const userCols = `u.id, u.name, u.email, u.password, u.role, u.phone, u.is_blocked, u.created_at`

func scanUser(row pgx.Row, extra ...interface{}) (*User, error) {
	var u User
	var role string
	dest := append([]interface{}{&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.Phone, &u.Blocked, &u.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	parsed, err := auth.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", u.ID, err)
	}
	u.Role = parsed
	return &u, nil
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (id, name, email, password, role, phone)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING is_blocked, created_at`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role.String(), u.Phone,
	).Scan(&u.Blocked, &u.CreatedAt)
	return apperr.FromStore(err, "user with this email")
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users u WHERE u.id = $1`, id))
	return u, apperr.FromStore(err, "user")
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users u WHERE u.email = $1`, email))
	return u, apperr.FromStore(err, "user")
}

func (r *userRepoPG) GetByDoctorID(ctx context.Context, doctorID uuid.UUID) (*User, error) {
	u, err := scanUser(r.conn(ctx).QueryRow(ctx,
		`SELECT `+userCols+` FROM users u JOIN doctors d ON d.user_id = u.id WHERE d.id = $1`, doctorID))
	return u, apperr.FromStore(err, "doctor")
}

func (r *userRepoPG) UpdateProfile(ctx context.Context, id uuid.UUID, name string, phone *string) (*User, error) {
	u, err := scanUser(r.conn(ctx).QueryRow(ctx, `
		UPDATE users u SET name = $2, phone = $3
		WHERE u.id = $1
		RETURNING `+userCols, id, name, phone))
	return u, apperr.FromStore(err, "user")
}

func (r *userRepoPG) SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) (*User, error) {
	u, err := scanUser(r.conn(ctx).QueryRow(ctx, `
		UPDATE users u SET is_blocked = $2
		WHERE u.id = $1
		RETURNING `+userCols, id, blocked))
	return u, apperr.FromStore(err, "user")
}

func (r *userRepoPG) ListWithDoctorInfo(ctx context.Context, limit, offset int) ([]*UserSummary, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, apperr.FromStore(err, "user")
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+userCols+`, d.id, d.specialization, d.experience, d.rating::float8, d.consultation_fee::float8
		FROM users u
		LEFT JOIN doctors d ON d.user_id = u.id
		ORDER BY u.created_at DESC, u.id
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, apperr.FromStore(err, "user")
	}
	defer rows.Close()

	items := []*UserSummary{}
	for rows.Next() {
		var s UserSummary
		u, err := scanUser(rows, &s.DoctorID, &s.Specialization, &s.Experience, &s.Rating, &s.ConsultationFee)
		if err != nil {
			return nil, 0, apperr.FromStore(err, "user")
		}
		s.User = *u
		items = append(items, &s)
	}
	return items, total, apperr.FromStore(rows.Err(), "user")
}
