package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	SHEETS = "https://www.googleapis.com/auth/spreadsheets"
	DRIVE  = "https://www.googleapis.com/auth/drive"
)

// googleClient builds an authenticated HTTP client for the Sheets and Drive
// APIs from a credentials file. Service-account keys are used directly;
// installed-app credentials need a GOOGLE_REFRESH_TOKEN obtained out of band,
// since these jobs run headless.
func googleClient(ctx context.Context, credentials string) (*http.Client, error) {
	b, err := os.ReadFile(credentials)
	if err != nil {
		return nil, fmt.Errorf("cannot read credentials file '%s' (%v)", credentials, err)
	}

	if jwt, err := google.JWTConfigFromJSON(b, SHEETS, DRIVE); err == nil {
		return jwt.Client(ctx), nil
	}

	config, err := google.ConfigFromJSON(b, SHEETS, DRIVE)
	if err != nil {
		return nil, fmt.Errorf("unrecognised credentials file '%s' (%v)", credentials, err)
	}

	refresh := strings.TrimSpace(os.Getenv("GOOGLE_REFRESH_TOKEN"))
	if refresh == "" {
		return nil, fmt.Errorf("GOOGLE_REFRESH_TOKEN is required with OAuth client credentials")
	}

	return config.Client(ctx, &oauth2.Token{RefreshToken: refresh}), nil
}
