package offline

import (
	"errors"

	"golang.org/x/oauth2"
)

// ErrNoSession is returned by the token source when no operator is signed in
// and no fallback token is configured.
var ErrNoSession = errors.New("not signed in")

// TokenSource returns an oauth2.TokenSource that reads the bearer token of
// the cached user on every call, so a login made by another process is
// picked up without a restart. fallback is used when the store holds no
// token.
func (s *LocalStore) TokenSource(fallback string) oauth2.TokenSource {
	return &sessionTokenSource{store: s, fallback: fallback}
}

type sessionTokenSource struct {
	store    *LocalStore
	fallback string
}

func (ts *sessionTokenSource) Token() (*oauth2.Token, error) {
	if u, ok := ts.store.LoadUser(); ok && u.Token != "" {
		return &oauth2.Token{AccessToken: u.Token, TokenType: "Bearer"}, nil
	}
	if ts.fallback != "" {
		return &oauth2.Token{AccessToken: ts.fallback, TokenType: "Bearer"}, nil
	}
	return nil, ErrNoSession
}
