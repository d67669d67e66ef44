package common

import "context"

// Session identifies the shopper a request is made on behalf of. The token is
// forwarded to the backend unchanged.
type Session struct {
	UserID string
	Token  string
}

// Authenticated reports whether the session carries a user.
func (s Session) Authenticated() bool {
	return s.UserID != "" && s.Token != ""
}

type sessionKey struct{}

// WithSession stores the session on the provided context.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom extracts the session from the context if present.
func SessionFrom(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}
