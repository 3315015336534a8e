package utils // package utils provides helper functions for token creation and hashing

import (
    "errors"
    "time"

    "github.com/golang-jwt/jwt/v5"
)

// AccessToken represents a signed JWT access token along with its expiry.
// The Token field contains the JWT string.  Exp stores the expiration
// timestamp as a time.Time.  Access tokens are short‑lived and encoded
// in the Authorization header when calling protected endpoints.
type AccessToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// NewAccessToken builds and signs an HS256 JWT for a staff member.  It takes
// the signing secret, the staff ID, the staff role (EMPLOYEE or MANAGER),
// and a TTL in minutes.  The JWT includes standard claims: subject (sub),
// role, expiration (exp) and issued at (iat).
func NewAccessToken(secret string, staffID uint64, role string, ttlMin int) (AccessToken, error) {
    exp := time.Now().UTC().Add(time.Duration(ttlMin) * time.Minute)
    claims := jwt.MapClaims{
        "sub":  staffID,
        "role": role,
        "exp":  exp.Unix(),
        "iat":  time.Now().UTC().Unix(),
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}

// ErrKioskToken is returned when a kiosk token fails verification for any
// reason: bad signature, expiry, or a missing lane claim.
var ErrKioskToken = errors.New("invalid kiosk token")

// NewKioskToken mints a long‑lived HS256 JWT for a lane terminal.  Kiosk
// tokens are provisioned once per physical lane and carried on the realtime
// channel as a sub‑protocol value, so the TTL is measured in days rather
// than minutes.
func NewKioskToken(secret, laneID string, ttlDays int) (string, error) {
    now := time.Now().UTC()
    claims := jwt.MapClaims{
        "lane": laneID,
        "exp":  now.Add(time.Duration(ttlDays) * 24 * time.Hour).Unix(),
        "iat":  now.Unix(),
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    return t.SignedString([]byte(secret))
}

// VerifyKioskToken parses and validates a kiosk token, returning the lane it
// was minted for.  Any parse, signature or expiry failure is collapsed into
// ErrKioskToken so callers reject the connection without leaking detail.
func VerifyKioskToken(secret, token string) (string, error) {
    parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, ErrKioskToken
        }
        return []byte(secret), nil
    })
    if err != nil || !parsed.Valid {
        return "", ErrKioskToken
    }
    claims, ok := parsed.Claims.(jwt.MapClaims)
    if !ok {
        return "", ErrKioskToken
    }
    lane, ok := claims["lane"].(string)
    if !ok || lane == "" {
        return "", ErrKioskToken
    }
    return lane, nil
}
