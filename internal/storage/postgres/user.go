package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-storefront/internal/domain/auth"
	"github.com/xenking/kart-storefront/internal/domain/user"
)

const userColumns = `id, name, email, role, address, payment_method, created_at, updated_at`

const (
	getUserByIDSQL = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	updateUserNameSQL = `UPDATE users SET name = $2, updated_at = now() WHERE id = $1`

	updateUserAddressSQL = `UPDATE users SET address = $2, updated_at = now() WHERE id = $1`

	updateUserPaymentMethodSQL = `UPDATE users SET payment_method = $2, updated_at = now() WHERE id = $1`

	updateUserNameRoleSQL = `UPDATE users SET name = $2, role = $3, updated_at = now() WHERE id = $1`

	deleteUserSQL = `DELETE FROM users WHERE id = $1`

	upsertUserSQL = `INSERT INTO users (id, name, email, role, address, payment_method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name, role = EXCLUDED.role, updated_at = EXCLUDED.updated_at
		RETURNING id`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	db DBTX
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: pool}
}

// GetByID returns a single user.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	return getUser(ctx, r.db, id)
}

// UpdateName renames a user.
func (r *UserRepository) UpdateName(ctx context.Context, id, name string) error {
	return r.exec(ctx, "updating name", updateUserNameSQL, id, name)
}

// UpdateAddress stores a user's shipping address.
func (r *UserRepository) UpdateAddress(ctx context.Context, id string, addr user.ShippingAddress) error {
	b, err := marshalJSON(addr)
	if err != nil {
		return err
	}
	return r.exec(ctx, "updating address", updateUserAddressSQL, id, b)
}

// UpdatePaymentMethod stores a user's preferred payment method.
func (r *UserRepository) UpdatePaymentMethod(ctx context.Context, id string, method user.PaymentMethod) error {
	return r.exec(ctx, "updating payment method", updateUserPaymentMethodSQL, id, string(method))
}

// UpdateNameRole changes a user's name and role.
func (r *UserRepository) UpdateNameRole(ctx context.Context, id, name string, role auth.Role) error {
	return r.exec(ctx, "updating user", updateUserNameRoleSQL, id, name, string(role))
}

// Delete removes a user together with their carts and orders.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, "deleting user", deleteUserSQL, id)
}

// List returns one page of users whose name matches f.Query, newest first,
// and the total number of matches.
func (r *UserRepository) List(ctx context.Context, f user.ListFilter) ([]user.User, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = user.PageSize
	}

	var total int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE ($1::text = '' OR name ILIKE '%' || $1::text || '%')`,
		f.Query,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting users: %w", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+userColumns+` FROM users
		WHERE ($1::text = '' OR name ILIKE '%' || $1::text || '%')
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`,
		f.Query, f.Limit, (f.Page-1)*f.Limit,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing users: %w", err)
	}
	users, err := pgx.CollectRows(rows, scanUser)
	if err != nil {
		return nil, 0, fmt.Errorf("listing users: %w", err)
	}
	return users, total, nil
}

// Upsert inserts a user or updates the name and role of the user with the
// same email. It returns the stored user id.
func (r *UserRepository) Upsert(ctx context.Context, u *user.User) (string, error) {
	var addr []byte
	if u.Address != nil {
		b, err := marshalJSON(u.Address)
		if err != nil {
			return "", err
		}
		addr = b
	}
	id := u.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	err := r.db.QueryRow(ctx, upsertUserSQL,
		id, u.Name, u.Email, string(u.Role), addr, string(u.PaymentMethod), createdAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upserting user %q: %w", u.Email, err)
	}
	return id, nil
}

func (r *UserRepository) exec(ctx context.Context, op, sql string, args ...any) error {
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s of user %q: %w", op, args[0], err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func getUser(ctx context.Context, db DBTX, id string) (*user.User, error) {
	rows, err := db.Query(ctx, getUserByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting user %q: %w", id, err)
	}
	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("getting user %q: %w", id, err)
	}
	return &u, nil
}

func scanUser(row pgx.CollectableRow) (user.User, error) {
	var (
		u      user.User
		role   string
		addr   []byte
		method string
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &role, &addr, &method, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return u, err
	}
	u.Role = auth.Role(role)
	u.PaymentMethod = user.PaymentMethod(method)
	if addr != nil {
		u.Address = &user.ShippingAddress{}
		if err := json.Unmarshal(addr, u.Address); err != nil {
			return u, fmt.Errorf("decoding address of user %q: %w", u.ID, err)
		}
	}
	return u, nil
}
