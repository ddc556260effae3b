package user

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/shule/core"
)

// Roles
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

var (
	AllRoles = []string{RoleStudent, RoleAdmin}

	rolePriorities = map[string]int{
		RoleAdmin:   2,
		RoleStudent: 1,
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

// IsValidRole reports whether role belongs to the closed role set.
func IsValidRole(role string) bool {
	_, ok := rolePriorities[role]
	return ok
}

// User is a credential record. The password hash never serializes.
type User struct {
	ID                     string    `json:"id"`
	Name                   string    `json:"name"`
	Username               string    `json:"username,omitempty"`
	Email                  string    `json:"email"`
	IsActive               bool      `json:"is_active"`
	Role                   string    `json:"role"`
	PasswordHash           []byte    `json:"-"`
	RequiresPasswordChange bool      `json:"requires_password_change"`
	CourseIDs              []string  `json:"course_ids,omitempty"`
	CreatedAt              time.Time `json:"created_at"` // UTC
	UpdatedAt              time.Time `json:"updated_at"` // UTC
	LastLogin              time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u *User) IsStudent() bool { return u.Role == RoleStudent }

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string   `json:"name" validate:"required"`
	Username        string   `json:"username" validate:"omitempty,min=6,alphanum_"`
	Email           string   `json:"email" validate:"required,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Role            string   `json:"role" validate:"omitempty,knownrole"`
	CourseIDs       []string `json:"course_ids"`
}

func (nu *NewUser) Validate(svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	if nu.Role == "" {
		nu.Role = RoleStudent
	}

	if err := core.Validate.Struct(nu); err != nil {
		return err
	}
	return svc.checkUniqueness(nu.Username, nu.Email)
}
