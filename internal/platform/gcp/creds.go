package gcp

import (
	"os"
	"strings"

	"google.golang.org/api/option"
)

const userAgent = "storybook-backend"

// ClientOptionsFromEnv builds the options shared by the storage and vision
// clients. Without explicit credentials the clients fall back to application
// default credentials.
func ClientOptionsFromEnv() []option.ClientOption {
	return clientOptions(os.Getenv)
}

func clientOptions(getenv func(string) string) []option.ClientOption {
	opts := []option.ClientOption{option.WithUserAgent(userAgent)}

	// inline JSON wins over a path
	creds := strings.TrimSpace(getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	switch {
	case creds == "":
	case strings.HasPrefix(creds, "{"):
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	default:
		opts = append(opts, option.WithCredentialsFile(creds))
	}

	if project := strings.TrimSpace(getenv("GOOGLE_CLOUD_QUOTA_PROJECT")); project != "" {
		opts = append(opts, option.WithQuotaProject(project))
	}
	return opts
}
