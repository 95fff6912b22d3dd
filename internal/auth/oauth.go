package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// googleUserInfoURL is Google's OpenID userinfo endpoint. The access token
// from the code exchange authorizes the call.
const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleUser is the portion of the Google userinfo response we care about.
// Google returns more fields (verified_email, given/family name, locale);
// we only unmarshal what the waitlist stores.
type GoogleUser struct {
	ID      string `json:"id"`      // Google's subject ID — stable, opaque, never reused
	Email   string `json:"email"`   // Primary account email
	Name    string `json:"name"`    // Display name
	Picture string `json:"picture"` // Avatar URL
}

// GoogleProvider wraps golang.org/x/oauth2 for the Google Authorization
// Code flow: redirect the user to Google, receive a short-lived code on the
// callback, exchange it server-to-server for an access token, then fetch
// the profile. The client secret and the access token never touch the
// browser.
type GoogleProvider struct {
	config *oauth2.Config
}

// NewGoogleProvider creates a GoogleProvider with the given credentials.
// callbackURL must exactly match an authorized redirect URI configured in
// the Google Cloud console for this OAuth client.
func NewGoogleProvider(clientID, clientSecret, callbackURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
	}
}

// AuthURL returns the URL to redirect the user to for authorization.
// state is a random value verified on the callback against a cookie, which
// ties the callback to a flow this server started (CSRF protection).
func (p *GoogleProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange completes the OAuth flow: trades the authorization code for a
// Google user profile.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*GoogleUser, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	// config.Client returns an *http.Client that injects the bearer token
	// into every request.
	client := p.config.Client(ctx, oauthToken)

	resp, err := client.Get(googleUserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("auth: calling Google userinfo API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: Google userinfo API returned status %d", resp.StatusCode)
	}

	var gu GoogleUser
	if err := json.NewDecoder(resp.Body).Decode(&gu); err != nil {
		return nil, fmt.Errorf("auth: decoding Google userinfo response: %w", err)
	}

	if gu.ID == "" {
		return nil, fmt.Errorf("auth: Google returned a profile without an id")
	}
	if gu.Email == "" {
		// The email scope was requested, so an empty email means the
		// account cannot join an email-keyed waitlist.
		return nil, fmt.Errorf("auth: Google profile has no email")
	}

	return &gu, nil
}
