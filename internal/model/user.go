package model

import (
	"slices"
	"time"
)

// Role controls access to admin-only catalog operations.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Preferences is the set of category tags a user opted into.
type Preferences map[Category]struct{}

// NewPreferences builds a set from raw tags. Unknown tags are kept out of
// the set so they never earn a bonus.
func NewPreferences(tags ...string) Preferences {
	p := make(Preferences, len(tags))
	for _, t := range tags {
		if c := ParseCategory(t); c != CategoryUnknown {
			p[c] = struct{}{}
		}
	}
	return p
}

// Has reports whether c is in the set.
func (p Preferences) Has(c Category) bool {
	if c == CategoryUnknown {
		return false
	}
	_, ok := p[c]
	return ok
}

// Tags returns the set as sorted strings for storage and JSON.
func (p Preferences) Tags() []string {
	out := make([]string, 0, len(p))
	for c := range p {
		out = append(out, string(c))
	}
	slices.Sort(out)
	return out
}

// User is a storefront account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Preferences  []string  `json:"preferences"`
	GreenTokens  int       `json:"greenTokens"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// PreferenceSet returns the user's preferences as a Preferences set.
func (u User) PreferenceSet() Preferences {
	return NewPreferences(u.Preferences...)
}
