// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package serviceaccount provides functions for working with Google service accounts.
//
// See https://developers.google.com/identity/protocols/oauth2/service-account.
package serviceaccount

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.astrophena.name/scriptbot/internal/request"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// DefaultTokenURI is used when the key doesn't specify one.
const DefaultTokenURI = "https://oauth2.googleapis.com/token"

// LoadKey loads service account key from JSON byte slice.
func LoadKey(b []byte) (*Key, error) {
	var key Key
	if err := json.Unmarshal(b, &key); err != nil {
		return nil, err
	}
	if key.ClientEmail == "" || key.PrivateKey == "" {
		return nil, errors.New("serviceaccount: key has no client_email or private_key")
	}
	if key.TokenURI == "" {
		key.TokenURI = DefaultTokenURI
	}
	return &key, nil
}

// LoadKeyFile loads service account key from the JSON file at path.
func LoadKeyFile(path string) (*Key, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadKey(b)
}

// Key represents a service account key.
type Key struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	ClientID     string `json:"client_id"`
	AuthURI      string `json:"auth_uri"`
	TokenURI     string `json:"token_uri"`
}

// tokenLifetime is how long requested access tokens stay valid.
const tokenLifetime = time.Hour

// AccessToken obtains an access token for service account identified by this key that is valid for one hour.
func (k *Key) AccessToken(ctx context.Context, client *http.Client, scopes ...string) (string, error) {
	tok, err := k.token(ctx, client, scopes)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

func (k *Key) token(ctx context.Context, client *http.Client, scopes []string) (*oauth2.Token, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(k.PrivateKey))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   k.ClientEmail,
		"sub":   k.ClientEmail,
		"aud":   k.TokenURI,
		"scope": strings.Join(scopes, " "),
		"iat":   now.Unix(),
		"exp":   now.Add(tokenLifetime).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if k.PrivateKeyID != "" {
		t.Header["kid"] = k.PrivateKeyID
	}
	sig, err := t.SignedString(key)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Add("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
	params.Add("assertion", sig)

	type response struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}

	resp, err := request.Make[response](ctx, request.Params{
		Method:     http.MethodPost,
		URL:        k.TokenURI,
		Body:       params,
		HTTPClient: client,
	})
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, errors.New("serviceaccount: token endpoint returned no access_token")
	}

	expiry := now.Add(tokenLifetime)
	if resp.ExpiresIn > 0 {
		expiry = now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return &oauth2.Token{
		AccessToken: resp.AccessToken,
		TokenType:   resp.TokenType,
		Expiry:      expiry,
	}, nil
}

// TokenSource returns an [oauth2.TokenSource] that exchanges signed
// assertions for access tokens and reuses them until they expire.
//
// ctx is used for every token request made by the returned source.
func (k *Key) TokenSource(ctx context.Context, client *http.Client, scopes ...string) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &tokenSource{ctx: ctx, key: k, client: client, scopes: scopes})
}

type tokenSource struct {
	ctx    context.Context
	key    *Key
	client *http.Client
	scopes []string
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	return ts.key.token(ts.ctx, ts.client, ts.scopes)
}
