package gcp

import (
	"os"
	"strings"

	"google.golang.org/api/option"
)

// credentialOptions appends explicit credentials to extra when the environment
// carries them. GOOGLE_APPLICATION_CREDENTIALS_JSON wins over
// GOOGLE_APPLICATION_CREDENTIALS; either may hold inline JSON or a file path.
// With neither set the client falls back to application default credentials.
func credentialOptions(extra ...option.ClientOption) []option.ClientOption {
	out := append([]option.ClientOption(nil), extra...)
	for _, key := range []string{"GOOGLE_APPLICATION_CREDENTIALS_JSON", "GOOGLE_APPLICATION_CREDENTIALS"} {
		creds := strings.TrimSpace(os.Getenv(key))
		if creds == "" {
			continue
		}
		if strings.HasPrefix(creds, "{") {
			return append(out, option.WithCredentialsJSON([]byte(creds)))
		}
		return append(out, option.WithCredentialsFile(creds))
	}
	return out
}
