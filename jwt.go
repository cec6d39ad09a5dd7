package collab

import (
	gojwt "github.com/golang-jwt/jwt/v5"
)

const AnonymousUsername = "Anonymous"

// UsernameFromJwt extracts a best-effort display name from a bearer
// credential. The token is not verified here; the hub remains the authority
// on identity. Anything unparseable falls back to the anonymous label.
func UsernameFromJwt(jwt string) string {
	if jwt == "" {
		return AnonymousUsername
	}

	parser := gojwt.NewParser()
	token, _, err := parser.ParseUnverified(jwt, gojwt.MapClaims{})
	if err != nil {
		return AnonymousUsername
	}

	claims, ok := token.Claims.(gojwt.MapClaims)
	if !ok {
		return AnonymousUsername
	}

	for _, name := range []string{"username", "preferred_username", "sub"} {
		if value, ok := claims[name]; ok {
			if username, ok := value.(string); ok && username != "" {
				return username
			}
		}
	}

	return AnonymousUsername
}
