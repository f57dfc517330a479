package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/jwt"
)

// ServiceAccountKey is the subset of a service account key file used for the
// JWT-bearer exchange.
type ServiceAccountKey struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	TokenURI     string `json:"token_uri"`
}

// ServiceAccount exchanges a signed JWT for an access token.
type ServiceAccount struct {
	key        ServiceAccountKey
	httpClient *http.Client
}

var _ Exchanger = &ServiceAccount{}

// LoadServiceAccount reads and validates a key file.
func LoadServiceAccount(path string, httpClient *http.Client) (*ServiceAccount, error) {
	if path == "" {
		return nil, ErrKeyFileMissing
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read service account key")
	}
	return ParseServiceAccount(data, httpClient)
}

func ParseServiceAccount(data []byte, httpClient *http.Client) (*ServiceAccount, error) {
	var key ServiceAccountKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, errors.Wrap(err, "decode service account key")
	}
	if key.ClientEmail == "" {
		return nil, ErrClientEmail
	}
	if key.PrivateKey == "" {
		return nil, ErrPrivateKey
	}
	if key.TokenURI == "" {
		key.TokenURI = DefaultTokenURI
	}
	return &ServiceAccount{key: key, httpClient: httpClient}, nil
}

// ProjectID is the project named in the key file.
func (s *ServiceAccount) ProjectID() string {
	return s.key.ProjectID
}

func (s *ServiceAccount) Email() string {
	return s.key.ClientEmail
}

// Exchange requests a fresh token. scope may hold several space separated
// scopes.
func (s *ServiceAccount) Exchange(ctx context.Context, scope string) (Token, error) {
	scopes := strings.Fields(scope)
	if len(scopes) == 0 {
		return Token{}, ErrEmptyScope
	}
	conf := &jwt.Config{
		Email:        s.key.ClientEmail,
		PrivateKey:   []byte(s.key.PrivateKey),
		PrivateKeyID: s.key.PrivateKeyID,
		Scopes:       scopes,
		TokenURL:     s.key.TokenURI,
	}
	if s.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	}
	tok, err := conf.TokenSource(ctx).Token()
	if err != nil {
		return Token{}, fmt.Errorf("token exchange for %s: %w", s.key.ClientEmail, err)
	}
	return Token{AccessToken: tok.AccessToken, Expiry: tok.Expiry}, nil
}
