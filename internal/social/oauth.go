// Package social builds the OAuth2 authorization redirects used to connect
// a publishing account. Token exchange and publishing live elsewhere.
package social

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/oauth2"

	"github.com/ent0n29/postcraft/internal/apperr"
)

// Credentials configures one platform's OAuth client.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

type provider struct {
	endpoint oauth2.Endpoint
	scopes   []string
	pkce     bool
}

var providers = map[string]provider{
	"instagram": {
		endpoint: oauth2.Endpoint{
			AuthURL:  "https://api.instagram.com/oauth/authorize",
			TokenURL: "https://api.instagram.com/oauth/access_token",
		},
		scopes: []string{"user_profile", "user_media"},
	},
	"linkedin": {
		endpoint: oauth2.Endpoint{
			AuthURL:   "https://www.linkedin.com/oauth/v2/authorization",
			TokenURL:  "https://www.linkedin.com/oauth/v2/accessToken",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		scopes: []string{"openid", "profile", "w_member_social"},
	},
	"x": {
		endpoint: oauth2.Endpoint{
			AuthURL:  "https://twitter.com/i/oauth2/authorize",
			TokenURL: "https://api.twitter.com/2/oauth2/token",
		},
		scopes: []string{"tweet.read", "tweet.write", "users.read", "offline.access"},
		pkce:   true,
	},
}

// Login is a prepared authorization redirect. State and Verifier must be
// kept by the caller (cookie) for the callback.
type Login struct {
	URL      string
	State    string
	Verifier string
}

// Connector holds the OAuth configs of the platforms that have credentials.
type Connector struct {
	configs map[string]*oauth2.Config
	pkce    map[string]bool
}

// NewConnector configures every platform in creds. Redirect URLs are
// <redirectBase>/v1/auth/<platform>/callback.
func NewConnector(redirectBase string, creds map[string]Credentials) *Connector {
	c := &Connector{configs: make(map[string]*oauth2.Config), pkce: make(map[string]bool)}
	base := strings.TrimRight(redirectBase, "/")
	for name, cred := range creds {
		p, ok := providers[name]
		if !ok || cred.ClientID == "" {
			continue
		}
		c.configs[name] = &oauth2.Config{
			ClientID:     cred.ClientID,
			ClientSecret: cred.ClientSecret,
			RedirectURL:  base + "/v1/auth/" + name + "/callback",
			Scopes:       p.scopes,
			Endpoint:     p.endpoint,
		}
		c.pkce[name] = p.pkce
	}
	return c
}

// Platforms lists the configured platform names, sorted.
func (c *Connector) Platforms() []string {
	out := make([]string, 0, len(c.configs))
	for name := range c.configs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (c *Connector) Login(platform string) (Login, error) {
	name := strings.ToLower(strings.TrimSpace(platform))
	if _, known := providers[name]; !known {
		return Login{}, apperr.NotFound("social.Login", fmt.Sprintf("unknown platform %q", platform))
	}
	cfg, ok := c.configs[name]
	if !ok {
		return Login{}, apperr.Validation("social.Login", fmt.Sprintf("platform %q is not configured", name), nil)
	}
	state, err := randomState()
	if err != nil {
		return Login{}, apperr.Internal("social.state", err)
	}
	login := Login{State: state}
	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline}
	if c.pkce[name] {
		login.Verifier = oauth2.GenerateVerifier()
		opts = append(opts, oauth2.S256ChallengeOption(login.Verifier))
	}
	login.URL = cfg.AuthCodeURL(state, opts...)
	return login, nil
}

func randomState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
