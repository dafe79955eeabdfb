package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/ukydev/fleet-dispatch/internal/models"
)

// SQLUserCollection implements UserCollection on the SQL store.
type SQLUserCollection struct {
	db      *sql.DB
	dialect Dialect
}

const userCols = `id, username, email, password_hash, role, first_name, last_name, is_active, last_login, created_at, updated_at`

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var lastLogin, created, updated any
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.FirstName, &u.LastName,
		&u.IsActive, &lastLogin, &created, &updated)
	if err != nil {
		return nil, err
	}
	u.LastLogin = parseTimePtr(lastLogin)
	u.CreatedAt = parseTime(created)
	u.UpdatedAt = parseTime(updated)
	return &u, nil
}

func (c *SQLUserCollection) access() sqlAccess { return sqlAccess{q: c.db, dialect: c.dialect} }

func (c *SQLUserCollection) InsertUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	user.IsActive = true
	a := c.access()
	_, err := a.exec(ctx, `INSERT INTO users (`+userCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Email, user.PasswordHash, string(user.Role), user.FirstName, user.LastName,
		user.IsActive, a.timePtrArg(user.LastLogin), a.timeArg(user.CreatedAt), a.timeArg(user.UpdatedAt))
	return err
}

func (c *SQLUserCollection) findBy(ctx context.Context, column, value string) (*models.User, error) {
	u, err := scanUser(c.access().queryRow(ctx, `SELECT `+userCols+` FROM users WHERE `+column+` = ?`, value))
	return u, notFound(err)
}

func (c *SQLUserCollection) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	return c.findBy(ctx, "id", id)
}

func (c *SQLUserCollection) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return c.findBy(ctx, "username", username)
}

func (c *SQLUserCollection) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return c.findBy(ctx, "email", email)
}

func (c *SQLUserCollection) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := c.access().query(ctx, `SELECT `+userCols+` FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, scanUser)
}

func (c *SQLUserCollection) UpdateUser(ctx context.Context, id string, user models.User) error {
	a := c.access()
	res, err := a.exec(ctx, `UPDATE users SET username = ?, email = ?, password_hash = ?, role = ?, first_name = ?,
		last_name = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		user.Username, user.Email, user.PasswordHash, string(user.Role), user.FirstName, user.LastName,
		user.IsActive, a.timeArg(time.Now()), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *SQLUserCollection) DeleteUser(ctx context.Context, id string) error {
	_, err := c.access().exec(ctx, `DELETE FROM users WHERE id = ?`, id)
	return err
}

func (c *SQLUserCollection) UpdateLastLogin(ctx context.Context, id string) error {
	a := c.access()
	now := a.timeArg(time.Now())
	_, err := a.exec(ctx, `UPDATE users SET last_login = ?, updated_at = ? WHERE id = ?`, now, now, id)
	return err
}
