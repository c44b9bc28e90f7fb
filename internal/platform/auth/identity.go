package auth

import (
	"context"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"
)

// Roles carried in the Firebase "role" custom claim.
const (
	RoleOwner = "owner"
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// Identity is the authenticated restaurant staff member behind an admin request.
type Identity struct {
	UID   string
	Email string
	Roles []string
	// RestaurantID scopes owners and staff to a single restaurant. Empty for platform admins.
	RestaurantID string

	token *firebaseauth.Token
}

// Token exposes the decoded Firebase ID token associated with this identity.
func (i *Identity) Token() *firebaseauth.Token {
	if i == nil {
		return nil
	}
	return i.token
}

// HasRole reports whether the identity includes the requested role (case-insensitive).
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = normaliseRole(role)
	if role == "" {
		return false
	}
	for _, r := range i.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the identity includes any of the provided roles.
func (i *Identity) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

// CanManageRestaurant reports whether the identity may read or change orders of restaurantID.
// Admins manage every restaurant; everyone else only the one in their claim.
func (i *Identity) CanManageRestaurant(restaurantID string) bool {
	if i == nil {
		return false
	}
	if i.HasRole(RoleAdmin) {
		return true
	}
	restaurantID = strings.TrimSpace(restaurantID)
	return restaurantID != "" && i.RestaurantID == restaurantID
}

type contextKey string

const identityContextKey contextKey = "github.com/cardapio-field/api/internal/platform/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
