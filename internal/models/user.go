// ABOUTME: User model, the parent row every health record references.
// ABOUTME: Identified externally by user_id, internally by the surrogate id.
package models

// DefaultTimezone is stored when a user is created without one.
const DefaultTimezone = "UTC"

// User is a person whose exports are imported.
type User struct {
	UserID   string
	Name     *string
	Email    *string
	Timezone string
}

// NewUser validates fields and builds a User.
func NewUser(f Fields) (*User, error) {
	if err := f.require("user_id"); err != nil {
		return nil, err
	}
	userID, _ := f.text("user_id")
	name, hasName := f.text("name")
	email, hasEmail := f.text("email")
	tz, ok := f.text("timezone")
	if !ok {
		tz = DefaultTimezone
	}
	return &User{
		UserID:   userID,
		Name:     optional(name, hasName),
		Email:    optional(email, hasEmail),
		Timezone: tz,
	}, nil
}

// BuildUser adapts NewUser to the Builder signature.
func BuildUser(f Fields) (Record, error) { return NewUser(f) }

// Model returns the table model the record belongs to.
func (u *User) Model() Model { return UserModel }

// Columns lists the columns Values fills, in order.
func (u *User) Columns() []string {
	return []string{"user_id", "name", "email", "timezone"}
}

// Values returns the column values in Columns order.
func (u *User) Values() []any {
	return []any{u.UserID, deref(u.Name), deref(u.Email), u.Timezone}
}

// Key returns the natural key values.
func (u *User) Key() []any { return []any{u.UserID} }

type userModel struct{}

func (userModel) Name() string { return "users" }
func (userModel) TableName() string { return "users" }
func (userModel) DateColumn() string { return "" }
func (userModel) KeyColumns() []string {
	return []string{"user_id"}
}

func (userModel) CreateSQL() string {
	return `CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT UNIQUE NOT NULL,
	name TEXT,
	email TEXT,
	timezone TEXT DEFAULT 'UTC',
	` + auditColumns + `
)`
}

func (userModel) IndexesSQL() []string {
	return []string{
		`CREATE INDEX IF NOT EXISTS idx_users_user_id ON users(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,
	}
}
