package secrets

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// NewFetcherFromEnv builds a Fetcher from the API_SECRET_* and
// API_SECURITY_ENVIRONMENT variables. Both the api and notifier binaries call
// it before config.Load so secret:// references resolve identically.
func NewFetcherFromEnv(ctx context.Context, logger *zap.Logger, env map[string]string) (*Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIRESTORE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = defaultFallbackPath
	}

	opts := []Option{
		WithEnvironment(envLabel),
		WithLogger(logger.Named("secrets")),
		WithFallbackFile(fallbackPath),
	}
	if projectMap := ParseProjectMap(lookup("API_SECRET_PROJECT_IDS")); len(projectMap) > 0 {
		opts = append(opts, WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, WithDefaultProject(defaultProject))
	}
	if credentialsFile := lookup("API_GOOGLE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return NewFetcher(ctx, opts...)
}

// ParseProjectMap parses "prod=pharmacy-prod,staging=pharmacy-stg" into an
// environment label to project ID map. Malformed entries are skipped.
func ParseProjectMap(raw string) map[string]string {
	projects := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		label, project, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			continue
		}
		label = strings.ToLower(strings.TrimSpace(label))
		project = strings.TrimSpace(project)
		if label == "" || project == "" {
			continue
		}
		projects[label] = project
	}
	return projects
}
