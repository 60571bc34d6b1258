package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/gritsync/gritsync-backend/pkg/enums"
)

// AppMetadata is the server-controlled metadata Supabase embeds in access tokens.
type AppMetadata struct {
	Role     enums.UserRole `json:"role,omitempty"`
	Provider string         `json:"provider,omitempty"`
}

// AccessTokenClaims mirrors the Supabase access token. Subject carries the user id.
type AccessTokenClaims struct {
	Email       string      `json:"email,omitempty"`
	Role        string      `json:"role,omitempty"`
	AppMetadata AppMetadata `json:"app_metadata"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *AccessTokenClaims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid subject %q: %w", c.Subject, err)
	}
	return id, nil
}

// UserRole returns the application role, defaulting to client.
func (c *AccessTokenClaims) UserRole() enums.UserRole {
	if c.AppMetadata.Role.IsValid() {
		return c.AppMetadata.Role
	}
	return enums.UserRoleClient
}
