package users

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/projecthub/projecthub/internal/authz"
	"github.com/projecthub/projecthub/internal/platform/httpx"
)

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// User represents an account. The password hash never leaves the package.
type User struct {
	ID           int64
	Username     string
	Email        string
	Company      string
	Phone        string
	Sex          string
	passwordHash string
}

// SetPassword replaces the stored hash. Passwords longer than
// MaxPasswordBytes wrap httpx.ErrValidation.
func (u *User) SetPassword(password string) error {
	if len(password) > MaxPasswordBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", httpx.ErrValidation, MaxPasswordBytes)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	if err != nil {
		return err
	}
	u.passwordHash = string(hash)
	return nil
}

// VerifyPassword reports whether password matches the stored hash.
func (u *User) VerifyPassword(password string) bool {
	if u.passwordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.passwordHash), []byte(password)) == nil
}

// Principal returns the identity carried through guarded calls.
func (u *User) Principal() authz.Principal {
	return authz.Principal{ID: u.ID, Username: u.Username, Email: u.Email}
}

// Profile is the public view of a user.
type Profile struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Company  string `json:"company"`
	Phone    string `json:"phone"`
	Sex      string `json:"sex"`
}

// Profile projects the user without credentials.
func (u *User) Profile() Profile {
	return Profile{UserID: u.ID, Username: u.Username, Email: u.Email, Company: u.Company, Phone: u.Phone, Sex: u.Sex}
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=255,username"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6"`
	Company  string `json:"company" validate:"required,max=50"`
	Phone    string `json:"phone" validate:"required,max=50"`
	Sex      string `json:"sex" validate:"required,max=50"`
}

type updateRequest struct {
	Username    *string `json:"username" validate:"omitnil,min=3,max=255,username"`
	NewPassword *string `json:"newPassword" validate:"omitnil,min=6"`
	Company     *string `json:"company" validate:"omitnil,min=1,max=50"`
	Phone       *string `json:"phone" validate:"omitnil,min=1,max=50"`
	Sex         *string `json:"sex" validate:"omitnil,min=1,max=50"`
}

func (req updateRequest) apply(u *User) error {
	if req.Username != nil {
		u.Username = *req.Username
	}
	if req.Company != nil {
		u.Company = *req.Company
	}
	if req.Phone != nil {
		u.Phone = *req.Phone
	}
	if req.Sex != nil {
		u.Sex = *req.Sex
	}
	if req.NewPassword != nil {
		return u.SetPassword(*req.NewPassword)
	}
	return nil
}
