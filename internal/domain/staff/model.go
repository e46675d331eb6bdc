package staff

import "time"

// Account is the stored staff document. It carries the password hash and
// is never written to an API response; use Profile for that.
type Account struct {
	StoreID      string     `json:"_id,omitempty" bson:"_id,omitempty"`
	Name         string     `json:"name" bson:"name"`
	Email        string     `json:"email" bson:"email"`
	PasswordHash string     `json:"passwordHash" bson:"passwordHash"`
	Role         string     `json:"role" bson:"role"`
	IsActive     bool       `json:"isActive" bson:"isActive"`
	Phone        string     `json:"phone" bson:"phone"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty" bson:"lastLoginAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt" bson:"updatedAt"`
}

func (a *Account) DocumentID() string      { return a.StoreID }
func (a *Account) SetDocumentID(id string) { a.StoreID = id }

// Profile is the public view of an account.
type Profile struct {
	ID          string     `json:"_id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	IsActive    bool       `json:"isActive"`
	Phone       string     `json:"phone"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (a *Account) Profile() Profile {
	return Profile{
		ID:          a.StoreID,
		Name:        a.Name,
		Email:       a.Email,
		Role:        a.Role,
		IsActive:    a.IsActive,
		Phone:       a.Phone,
		LastLoginAt: a.LastLoginAt,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

// Session is returned by a successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Staff     Profile   `json:"staff"`
}

// CreateInput is an admin's request for a new account.
type CreateInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Phone    string `json:"phone"`
}

// UpdateInput changes an account. Empty strings keep the current value;
// nil IsActive keeps the current state.
type UpdateInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Phone    string `json:"phone"`
	IsActive *bool  `json:"isActive"`
}
