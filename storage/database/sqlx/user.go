package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core/user"
)

type userRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

// dbUser maps the "user" table; nullable columns use null types.
type dbUser struct {
	ID                     string         `db:"id"`
	Name                   string         `db:"name"`
	Username               null.String    `db:"username"`
	Email                  string         `db:"email"`
	IsActive               bool           `db:"is_active"`
	Role                   string         `db:"role"`
	PasswordHash           null.Bytes     `db:"password_hash"`
	RequiresPasswordChange bool           `db:"requires_password_change"`
	CourseIDs              pq.StringArray `db:"course_ids"`
	CreatedAt              time.Time      `db:"created_at"`
	UpdatedAt              time.Time      `db:"updated_at"`
	LastLogin              null.Time      `db:"last_login"`
}

func (du dbUser) toUser() user.User {
	return user.User{
		ID:                     du.ID,
		Name:                   du.Name,
		Username:               du.Username.String,
		Email:                  du.Email,
		IsActive:               du.IsActive,
		Role:                   du.Role,
		PasswordHash:           du.PasswordHash.Bytes,
		RequiresPasswordChange: du.RequiresPasswordChange,
		CourseIDs:              []string(du.CourseIDs),
		CreatedAt:              du.CreatedAt,
		UpdatedAt:              du.UpdatedAt,
		LastLogin:              du.LastLogin.Time,
	}
}

func toDBUser(usr user.User) dbUser {
	return dbUser{
		ID:                     usr.ID,
		Name:                   usr.Name,
		Username:               null.NewString(usr.Username, usr.Username != ""),
		Email:                  usr.Email,
		IsActive:               usr.IsActive,
		Role:                   usr.Role,
		PasswordHash:           null.NewBytes(usr.PasswordHash, usr.PasswordHash != nil),
		RequiresPasswordChange: usr.RequiresPasswordChange,
		CourseIDs:              pq.StringArray(usr.CourseIDs),
		CreatedAt:              usr.CreatedAt,
		UpdatedAt:              usr.UpdatedAt,
		LastLogin:              null.NewTime(usr.LastLogin, !usr.LastLogin.IsZero()),
	}
}

const userCols = `id, name, username, email, is_active, role, password_hash, requires_password_change, course_ids, created_at, updated_at, last_login`

func (repo *userRepository) getUser(ctx context.Context, query string, args ...interface{}) (user.User, error) {
	var du dbUser
	if err := repo.db.GetContext(ctx, &du, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "querying user")
	}
	return du.toUser(), nil
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	exclIDs := make([]string, 0, len(excludedUsers))
	for _, usr := range excludedUsers {
		exclIDs = append(exclIDs, usr.ID)
	}

	var clashes []dbUser
	err := repo.db.SelectContext(ctx, &clashes,
		`SELECT `+userCols+` FROM "user"
		 WHERE (username = $1 OR email = $2) AND NOT (id = ANY($3))
		 LIMIT 2`,
		null.NewString(username, username != ""), email, pq.Array(exclIDs),
	)
	if err != nil {
		return errors.Wrap(err, "checking uniqueness")
	}
	for _, du := range clashes {
		if username != "" && du.Username.String == username {
			return user.ErrUsernameExists
		}
		if du.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}
	du := toDBUser(usr)
	_, err := repo.db.NamedExecContext(ctx,
		`INSERT INTO "user" (`+userCols+`)
		 VALUES (:id, :name, :username, :email, :is_active, :role, :password_hash, :requires_password_change, :course_ids, :created_at, :updated_at, :last_login)`,
		du,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	return repo.getUser(ctx, `SELECT `+userCols+` FROM "user" WHERE id = $1`, id)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getUser(ctx, `SELECT `+userCols+` FROM "user" WHERE email = $1`, email)
}

func (repo *userRepository) GetUserByUsernameOrEmail(ctx context.Context, uname string) (user.User, error) {
	return repo.getUser(ctx, `SELECT `+userCols+` FROM "user" WHERE username = $1 OR email = $1`, uname)
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	du := toDBUser(usr)
	res, err := repo.db.NamedExecContext(ctx,
		`UPDATE "user"
		 SET name = :name, username = :username, email = :email, is_active = :is_active,
		     role = :role, password_hash = :password_hash,
		     requires_password_change = :requires_password_change, course_ids = :course_ids,
		     updated_at = :updated_at
		 WHERE id = :id`,
		du,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) SetLastLogin(ctx context.Context, id string, t time.Time) error {
	res, err := repo.db.ExecContext(ctx, `UPDATE "user" SET last_login = $1 WHERE id = $2`, t, id)
	if err != nil {
		return errors.Wrap(err, "setting last login")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.ErrNotFound
	}
	return nil
}
