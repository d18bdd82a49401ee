// Package auth establishes viewer roles and gates user-triggered actions.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

// Role is one of three mutually exclusive access levels.
type Role string

const (
	// RoleKiosk can only watch: no navigation, no admin, a fixed
	// starting profile.
	RoleKiosk Role = "kiosk"
	// RolePrivileged may navigate and open the full-camera overview.
	RolePrivileged Role = "privileged"
	// RoleAdmin may additionally open the admin panel and write.
	RoleAdmin Role = "admin"
)

// ParseRole validates a role string. Unknown values resolve to kiosk so a
// corrupted token can never widen access.
func ParseRole(s string) Role {
	switch Role(s) {
	case RolePrivileged, RoleAdmin:
		return Role(s)
	default:
		return RoleKiosk
	}
}

// Action is a user-triggered operation subject to role gating.
type Action string

const (
	ActionNavigate    Action = "navigate"
	ActionChangeTimer Action = "change_timer"
	ActionOverview    Action = "overview"
	ActionOpenAdmin   Action = "open_admin"
	ActionAdminWrite  Action = "admin_write"
)

var rolePermissions = map[Role]map[Action]bool{
	RoleKiosk: {},
	RolePrivileged: {
		ActionNavigate:    true,
		ActionChangeTimer: true,
		ActionOverview:    true,
	},
	RoleAdmin: {
		ActionNavigate:    true,
		ActionChangeTimer: true,
		ActionOverview:    true,
		ActionOpenAdmin:   true,
		ActionAdminWrite:  true,
	},
}

// Allow reports whether a role may perform an action. Denial is silent at
// the surface layer; callers hide the control rather than raising an error.
func Allow(role Role, action Action) bool {
	return rolePermissions[role][action]
}

// ErrInvalidToken indicates a token that failed signature or claim checks.
var ErrInvalidToken = errors.New("auth: invalid token")

const tokenTTL = 12 * time.Hour

// SignToken issues a session token binding a role and an optional fixed
// profile override.
func SignToken(secret []byte, role Role, profileID string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"role": string(role),
		"iat":  now.Unix(),
		"exp":  now.Add(tokenTTL).Unix(),
	}
	if profileID != "" {
		claims["profileId"] = profileID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Claims is the decoded content of a session token.
type Claims struct {
	Role      Role
	ProfileID string
}

// VerifyToken checks the signature and expiry and extracts the claims.
func VerifyToken(secret []byte, tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Claims{}, ErrInvalidToken
	}

	roleValue, _ := mapClaims["role"].(string)
	profileID, _ := mapClaims["profileId"].(string)
	return Claims{
		Role:      ParseRole(roleValue),
		ProfileID: profileID,
	}, nil
}

// RoleForPassword matches a password against per-role bcrypt hashes, for
// deployments without a user directory. Admin is checked before privileged
// so shared passwords resolve to the stronger role deterministically.
func RoleForPassword(hashes map[Role]string, password string) (Role, bool) {
	for _, role := range []Role{RoleAdmin, RolePrivileged, RoleKiosk} {
		hash, ok := hashes[role]
		if !ok || hash == "" {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil {
			return role, true
		}
	}
	return "", false
}

// HashPassword produces a bcrypt hash for configuration bootstrapping.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}
