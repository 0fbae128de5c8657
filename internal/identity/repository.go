package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned by Create when the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrPhoneTaken is returned by Create when the phone is already registered.
	ErrPhoneTaken = errors.New("phone already registered")
)

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) (User, error)
	FindByID(ctx context.Context, id int64) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByPhone(ctx context.Context, phone string) (User, error)
	MarkVerified(ctx context.Context, id int64) (User, error)
}

const uniqueViolation = "23505"

const userColumns = `id, email, phone, password, first_name, middle_name, name, address, district,
    state, gst_number, gender, age, auth_type, user_type, is_verified, created_at, updated_at`

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new user and returns it with the generated id and timestamps.
func (r *PostgresRepository) Create(ctx context.Context, user User) (User, error) {
	if user.UserType == "" {
		user.UserType = UserTypeCustomer
	}
	row := r.db.QueryRow(ctx, `INSERT INTO users (email, phone, password, first_name, middle_name, name,
        address, district, state, gst_number, gender, age, auth_type, user_type, is_verified)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
        RETURNING `+userColumns,
		user.Email, user.Phone, user.PasswordHash, user.FirstName, user.MiddleName, user.Name,
		user.Address, user.District, user.State, user.GSTNumber, genderText(user.Gender), user.Age,
		string(user.AuthType), string(user.UserType), user.IsVerified)
	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			switch pgErr.ConstraintName {
			case "users_email_key":
				return User{}, ErrEmailTaken
			case "users_phone_key":
				return User{}, ErrPhoneTaken
			}
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return created, nil
}

// FindByID fetches a user by id.
func (r *PostgresRepository) FindByID(ctx context.Context, id int64) (User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// FindByEmail fetches a user by email.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// FindByPhone fetches a user by phone number.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1`, phone)
}

// MarkVerified flags the user as verified and returns the updated row.
func (r *PostgresRepository) MarkVerified(ctx context.Context, id int64) (User, error) {
	return r.findOne(ctx, `UPDATE users SET is_verified = TRUE, updated_at = $2 WHERE id = $1
        RETURNING `+userColumns, id, time.Now().UTC())
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, args ...any) (User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

func genderText(g *Gender) *string {
	if g == nil {
		return nil
	}
	s := string(*g)
	return &s
}

func scanUser(row pgx.Row) (User, error) {
	var (
		user     User
		gender   *string
		authType string
		userType string
	)
	err := row.Scan(&user.ID, &user.Email, &user.Phone, &user.PasswordHash, &user.FirstName,
		&user.MiddleName, &user.Name, &user.Address, &user.District, &user.State, &user.GSTNumber,
		&gender, &user.Age, &authType, &userType, &user.IsVerified, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	if gender != nil {
		g := Gender(*gender)
		user.Gender = &g
	}
	user.AuthType = AuthType(authType)
	user.UserType = UserType(userType)
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, nil
}
