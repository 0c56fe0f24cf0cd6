package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "pharmacy-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.PubSub.ProjectID != "pharmacy-dev" {
		t.Errorf("expected pubsub project to default to firestore project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.Shop.FlatShippingFee != 30000 {
		t.Errorf("expected flat shipping fee 30000, got %d", cfg.Shop.FlatShippingFee)
	}
	if cfg.Shop.CODDeliveryDays != 4 || cfg.Shop.OnlineDeliveryDays != 3 {
		t.Errorf("unexpected delivery offsets cod=%d online=%d", cfg.Shop.CODDeliveryDays, cfg.Shop.OnlineDeliveryDays)
	}
	if cfg.Shop.Currency != "VND" {
		t.Errorf("expected VND currency, got %s", cfg.Shop.Currency)
	}
	if got := cfg.Shop.VariantCategories["thuoc"]; got != "Thuốc" {
		t.Errorf("expected built-in variant mapping, got %q", got)
	}
	if cfg.VNPay.PayURL != defaultVNPayPayURL {
		t.Errorf("expected sandbox pay url, got %s", cfg.VNPay.PayURL)
	}
	if cfg.VNPay.ExpireAfter != 15*time.Minute {
		t.Errorf("unexpected vnpay expiry %s", cfg.VNPay.ExpireAfter)
	}
	if cfg.Notifications.Topic != defaultNotificationTopic {
		t.Errorf("unexpected notification topic %s", cfg.Notifications.Topic)
	}
	if cfg.Notifications.MaxAttempts != 5 {
		t.Errorf("unexpected notification attempts %d", cfg.Notifications.MaxAttempts)
	}
	if cfg.Idempotency.Header != "Idempotency-Key" || cfg.Idempotency.TTL != 24*time.Hour {
		t.Errorf("unexpected idempotency defaults %+v", cfg.Idempotency)
	}
	if cfg.Idempotency.CleanupInterval != 15*time.Minute || cfg.Idempotency.CleanupBatchSize != 200 {
		t.Errorf("unexpected idempotency cleanup defaults %+v", cfg.Idempotency)
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                   "9090",
		"API_SERVER_IDLE_TIMEOUT":           "2m",
		"API_FIRESTORE_PROJECT_ID":          "pharmacy-prod",
		"API_PUBSUB_PROJECT_ID":             "pharmacy-events",
		"API_SHOP_FLAT_SHIPPING_FEE":        "25000",
		"API_SHOP_COD_DELIVERY_DAYS":        "5",
		"API_SHOP_ONLINE_DELIVERY_DAYS":     "2",
		"API_SHOP_VARIANT_CATEGORIES":       "Vitamin=Vitamin & khoáng chất, thuoc=Thuốc kê đơn",
		"API_VNPAY_TMN_CODE":                "TESTTMN1",
		"API_VNPAY_HASH_SECRET":             "secret://vnpay/hash",
		"API_VNPAY_RETURN_URL":              "https://shop.example.vn/payment/return",
		"API_NOTIFICATIONS_MAILER_ENDPOINT": "https://mail.example.vn/send",
		"API_NOTIFICATIONS_MAILER_TOKEN":    "sm://mailer/token",
		"API_NOTIFICATIONS_MAX_ATTEMPTS":    "8",
		"API_SECURITY_ENVIRONMENT":          "PROD",
	}

	secrets := map[string]string{
		"secret://vnpay/hash":   "vnpay-hash",
		"secret://mailer/token": "mailer-token",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
		WithRequiredSecrets("VNPay.HashSecret"),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.PubSub.ProjectID != "pharmacy-events" {
		t.Errorf("expected explicit pubsub project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.Shop.FlatShippingFee != 25000 {
		t.Errorf("unexpected flat shipping fee %d", cfg.Shop.FlatShippingFee)
	}
	if cfg.Shop.CODDeliveryDays != 5 || cfg.Shop.OnlineDeliveryDays != 2 {
		t.Errorf("unexpected delivery offsets cod=%d online=%d", cfg.Shop.CODDeliveryDays, cfg.Shop.OnlineDeliveryDays)
	}
	if got := cfg.Shop.VariantCategories["vitamin"]; got != "Vitamin & khoáng chất" {
		t.Errorf("expected override variant mapping, got %q", got)
	}
	if got := cfg.Shop.VariantCategories["thuoc"]; got != "Thuốc kê đơn" {
		t.Errorf("expected override to replace built-in mapping, got %q", got)
	}
	if got := cfg.Shop.VariantCategories["thiet-bi-y-te"]; got != "Thiết bị y tế" {
		t.Errorf("expected built-in mapping to survive, got %q", got)
	}
	if cfg.VNPay.HashSecret != "vnpay-hash" {
		t.Errorf("expected resolved vnpay hash secret, got %s", cfg.VNPay.HashSecret)
	}
	if cfg.Notifications.MailerToken != "mailer-token" {
		t.Errorf("expected resolved mailer token, got %s", cfg.Notifications.MailerToken)
	}
	if cfg.Notifications.MaxAttempts != 8 {
		t.Errorf("unexpected max attempts %d", cfg.Notifications.MaxAttempts)
	}
	if cfg.Security.Environment != "prod" {
		t.Errorf("expected lower-cased environment, got %s", cfg.Security.Environment)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "# local overrides\nexport API_SERVER_PORT=7070\nAPI_FIRESTORE_PROJECT_ID=\"pharmacy-dot\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "pharmacy-dot" {
		t.Errorf("expected firestore project from dotenv, got %s", cfg.Firestore.ProjectID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if fields := validation.Fields(); len(fields) != 1 || fields[0] != "Firestore.ProjectID" {
		t.Fatalf("unexpected invalid fields %v", fields)
	}
}

func TestLoadRejectsNonPositiveDeliveryDays(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID":   "pharmacy-dev",
		"API_SHOP_COD_DELIVERY_DAYS": "0",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if fields := validation.Fields(); len(fields) != 1 || fields[0] != "Shop.CODDeliveryDays" {
		t.Fatalf("unexpected invalid fields %v", fields)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "pharmacy-dev",
		"API_VNPAY_HASH_SECRET":    "secret://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "pharmacy-dev",
	}

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("VNPay.HashSecret", "VNPay.HashSecret"),
	)
	if err == nil {
		t.Fatal("expected missing secrets error, got nil")
	}
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	expectedRedacted := redactSecretName("VNPay.HashSecret")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
	if got := missing.Names(); len(got) != 1 || got[0] != "VNPay.HashSecret" {
		t.Fatalf("unexpected names %v", got)
	}
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "pharmacy-dev",
		"API_VNPAY_HASH_SECRET":    "sm://vnpay/hash",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref == "secret://vnpay/hash" {
			return "legacy-secret", nil
		}
		return "", errors.New("not found")
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.VNPay.HashSecret != "legacy-secret" {
		t.Fatalf("expected legacy secret, got %s", cfg.VNPay.HashSecret)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIRESTORE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIRESTORE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	overrides := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "override-project",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIRESTORE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
}
