package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/codr1/leaguely/internal/api/authz"
)

const (
	authCookieName = "leaguely_auth"
	authSessionTTL = 8 * time.Hour
	bearerPrefix   = "Bearer "
)

var (
	errAuthConfigMissing = errors.New("auth configuration missing")
	errInvalidToken      = errors.New("invalid auth token")
	errTokenExpired      = errors.New("auth session expired")
)

type authSession struct {
	UserID    int64  `json:"user_id"`
	Role      string `json:"role"`
	ExpiresAt int64  `json:"exp"`
}

func isSecureCookie() bool {
	return appConfig == nil || !appConfig.IsDevelopment()
}

// IssueToken signs a session for user that expires authSessionTTL after now.
func IssueToken(user *authz.AuthUser, now time.Time) (string, time.Time, error) {
	if user == nil {
		return "", time.Time{}, errors.New("auth session requires user")
	}

	expiresAt := now.Add(authSessionTTL)
	payload, err := json.Marshal(authSession{
		UserID:    user.ID,
		Role:      user.Role,
		ExpiresAt: expiresAt.Unix(),
	})
	if err != nil {
		return "", time.Time{}, err
	}

	encodedPayload := base64.RawURLEncoding.EncodeToString(payload)
	signature, err := signPayload(encodedPayload)
	if err != nil {
		return "", time.Time{}, err
	}
	return encodedPayload + "." + signature, expiresAt, nil
}

func SetAuthCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecureCookie(),
		SameSite: http.SameSiteLaxMode,
		Expires:  expiresAt,
		MaxAge:   int(authSessionTTL.Seconds()),
	})
}

func ClearAuthCookie(w http.ResponseWriter) {
	if w == nil {
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecureCookie(),
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

// UserFromRequest resolves the caller from an Authorization bearer token or
// the auth cookie, in that order. A request without either yields nil, nil.
func UserFromRequest(r *http.Request) (*authz.AuthUser, error) {
	if r == nil {
		return nil, nil
	}

	token := bearerToken(r)
	if token == "" {
		cookie, err := r.Cookie(authCookieName)
		if err != nil {
			if errors.Is(err, http.ErrNoCookie) {
				return nil, nil
			}
			return nil, err
		}
		token = cookie.Value
	}

	session, err := parseToken(token, time.Now())
	if err != nil {
		return nil, err
	}
	return &authz.AuthUser{ID: session.UserID, Role: session.Role}, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}

func parseToken(token string, now time.Time) (*authSession, error) {
	if appConfig == nil || appConfig.App.SecretKey == "" {
		return nil, errAuthConfigMissing
	}

	encodedPayload, signature, ok := strings.Cut(token, ".")
	if !ok {
		return nil, errInvalidToken
	}

	expectedSignature, err := signPayload(encodedPayload)
	if err != nil {
		return nil, err
	}
	if !hmac.Equal([]byte(signature), []byte(expectedSignature)) {
		return nil, errors.New("invalid auth token signature")
	}

	payload, err := base64.RawURLEncoding.DecodeString(encodedPayload)
	if err != nil {
		return nil, errInvalidToken
	}

	var session authSession
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, errInvalidToken
	}
	if session.UserID <= 0 {
		return nil, errInvalidToken
	}
	if session.ExpiresAt <= now.Unix() {
		return nil, errTokenExpired
	}

	return &session, nil
}

func signPayload(payload string) (string, error) {
	if appConfig == nil || appConfig.App.SecretKey == "" {
		return "", errAuthConfigMissing
	}

	mac := hmac.New(sha256.New, []byte(appConfig.App.SecretKey))
	_, _ = mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}
