// Package jwt issues and verifies the access and refresh tokens of a
// sign-in session.
//
// Both classes carry {sub, sid, typ}. They are signed with separate keys so
// an access token can never be replayed as a refresh token, and [Issuer.Verify]
// reports [ErrTokenExpired], [ErrTokenMalformed] and [ErrTokenTypeMismatch]
// as distinct errors.
package jwt
