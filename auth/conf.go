package auth

import "golang.org/x/oauth2/clientcredentials"

// Conf represents the OAuth2 client credentials used to obtain bearer tokens
// for the backend. An empty ClientID disables token authentication.
type Conf struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	TokenURL     string   `json:"token_url"`
	Scopes       []string `json:"scopes"`
}

// Enabled reports whether token authentication is configured.
func (c Conf) Enabled() bool { return c.ClientID != "" }

func (c *Conf) toOauth2Config() clientcredentials.Config {
	return clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.TokenURL,
		Scopes:       c.Scopes,
	}
}
