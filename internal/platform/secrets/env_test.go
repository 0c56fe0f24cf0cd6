package secrets

import (
	"context"
	"errors"
	"testing"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"google.golang.org/api/option"
)

func TestParseProjectMap(t *testing.T) {
	got := ParseProjectMap(" Prod=pharmacy-prod, staging = pharmacy-stg ,broken,=x,dev=")
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %v", got)
	}
	if got["prod"] != "pharmacy-prod" || got["staging"] != "pharmacy-stg" {
		t.Fatalf("unexpected map %v", got)
	}
	if len(ParseProjectMap("")) != 0 {
		t.Fatalf("expected empty map for empty input")
	}
}

func TestNewFetcherFromEnvResolvesFromFallback(t *testing.T) {
	originalFactory := secretManagerClientFactory
	secretManagerClientFactory = func(context.Context, ...option.ClientOption) (*secretmanager.Client, error) {
		return nil, errors.New("no credentials")
	}
	t.Cleanup(func() { secretManagerClientFactory = originalFactory })

	env := map[string]string{
		"API_SECURITY_ENVIRONMENT": "Staging",
		"API_FIRESTORE_PROJECT_ID": "pharmacy-dev",
		"API_SECRET_PROJECT_IDS":   "staging=pharmacy-stg",
		"API_SECRET_FALLBACK_FILE": writeFallback(t, "secret://vnpay_hash_secret=local-secret\n"),
	}
	fetcher, err := NewFetcherFromEnv(context.Background(), nil, env)
	if err != nil {
		t.Fatalf("NewFetcherFromEnv: %v", err)
	}
	defer fetcher.Close()

	if fetcher.env != "staging" || fetcher.defaultProj != "pharmacy-dev" {
		t.Fatalf("unexpected fetcher scope env=%q project=%q", fetcher.env, fetcher.defaultProj)
	}
	if fetcher.projectMap["staging"] != "pharmacy-stg" {
		t.Fatalf("expected project map to be applied, got %v", fetcher.projectMap)
	}
	value, err := fetcher.Resolve(context.Background(), "secret://vnpay_hash_secret")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if value != "local-secret" {
		t.Fatalf("expected fallback value, got %q", value)
	}
}
