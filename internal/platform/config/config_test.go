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
	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.Environment != "local" {
		t.Errorf("expected local environment, got %s", cfg.Server.Environment)
	}
	if cfg.Server.SessionHeader != defaultSessionHeader {
		t.Errorf("unexpected session header: %s", cfg.Server.SessionHeader)
	}
	if len(cfg.Server.AdminRoles) != 2 || cfg.Server.AdminRoles[0] != "owner" {
		t.Errorf("unexpected admin roles: %v", cfg.Server.AdminRoles)
	}
	if cfg.OrderAPI.BaseURL != defaultOrderAPIBaseURL {
		t.Errorf("unexpected order api base url: %s", cfg.OrderAPI.BaseURL)
	}
	if cfg.Redis.Addr != "" {
		t.Errorf("expected redis disabled by default, got %s", cfg.Redis.Addr)
	}
	if cfg.Polling.OrderTrackingInterval != 3*time.Second {
		t.Errorf("unexpected tracking interval: %s", cfg.Polling.OrderTrackingInterval)
	}
	if cfg.Polling.NotificationInterval != 5*time.Second {
		t.Errorf("unexpected notification interval: %s", cfg.Polling.NotificationInterval)
	}
	if cfg.Pricing.PlatformFeeRate.String() != "0.05" {
		t.Errorf("unexpected platform fee rate: %s", cfg.Pricing.PlatformFeeRate)
	}
	if cfg.Pricing.Location == nil || cfg.Pricing.Location.String() != defaultTimezone {
		t.Errorf("unexpected pricing location: %v", cfg.Pricing.Location)
	}
	if cfg.Firestore.CurrentOrdersCollection != "currentOrders" {
		t.Errorf("unexpected collection: %s", cfg.Firestore.CurrentOrdersCollection)
	}
	if len(cfg.Coupons.Rules) != 0 {
		t.Errorf("expected no coupon rules, got %v", cfg.Coupons.Rules)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                  "9090",
		"API_ENVIRONMENT":                  "PROD",
		"API_ADMIN_ROLES":                  "owner, manager",
		"API_ORDER_API_BASE_URL":           "https://orders.example.com/api/v1",
		"API_REDIS_ADDR":                   "localhost:6379",
		"API_REDIS_DB":                     "2",
		"API_REDIS_CART_TTL":               "2h",
		"API_FIREBASE_PROJECT_ID":          "cardapio-prod",
		"API_PUBSUB_NOTIFICATIONS_TOPIC":   "order-notifications",
		"API_POLL_NOTIFICATION_INTERVAL":   "10s",
		"API_PRICING_PLATFORM_FEE_RATE":    "0.07",
		"API_PRICING_TIMEZONE":             "UTC",
		"API_POLL_ORDER_TRACKING_INTERVAL": "not-a-duration",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port override, got %s", cfg.Server.Port)
	}
	if cfg.Server.Environment != "prod" {
		t.Errorf("expected lowercased environment, got %s", cfg.Server.Environment)
	}
	if len(cfg.Server.AdminRoles) != 2 || cfg.Server.AdminRoles[1] != "manager" {
		t.Errorf("unexpected admin roles: %v", cfg.Server.AdminRoles)
	}
	if cfg.Redis.DB != 2 || cfg.Redis.CartTTL != 2*time.Hour {
		t.Errorf("unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.Firestore.ProjectID != "cardapio-prod" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "cardapio-prod" {
		t.Errorf("expected pubsub project to default to firestore project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.Polling.NotificationInterval != 10*time.Second {
		t.Errorf("unexpected notification interval: %s", cfg.Polling.NotificationInterval)
	}
	if cfg.Polling.OrderTrackingInterval != defaultOrderTrackingInterval {
		t.Errorf("invalid duration should fall back to default, got %s", cfg.Polling.OrderTrackingInterval)
	}
	if cfg.Pricing.PlatformFeeRate.String() != "0.07" {
		t.Errorf("unexpected platform fee rate: %s", cfg.Pricing.PlatformFeeRate)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	env := map[string]string{
		"API_ENVIRONMENT":               "prod",
		"API_PRICING_PLATFORM_FEE_RATE": "abc",
		"API_PRICING_TIMEZONE":          "Mars/Olympus",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	fields := map[string]bool{}
	for _, field := range validation.Fields() {
		fields[field] = true
	}
	for _, want := range []string{"Pricing.PlatformFeeRate", "Pricing.Timezone", "Firebase.ProjectID"} {
		if !fields[want] {
			t.Errorf("expected %s in validation fields, got %v", want, validation.Fields())
		}
	}
}

func TestLoadDotEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "# comment\nexport API_SERVER_PORT=7070\nAPI_ORDER_API_BASE_URL=\"http://dotenv/api/v1\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(),
		WithEnvFile(envPath),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{"API_SERVER_PORT": "6060"}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "6060" {
		t.Errorf("explicit map should win over dotenv, got %s", cfg.Server.Port)
	}
	if cfg.OrderAPI.BaseURL != "http://dotenv/api/v1" {
		t.Errorf("expected dotenv base url, got %s", cfg.OrderAPI.BaseURL)
	}
}

func TestLoadCouponFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coupons.yaml")
	content := `coupons:
  - code: natal20
    kind: percentage
    value: 0.2
    label: 20% de desconto
  - code: FRETEGRATIS
    kind: fixed
    waivesDeliveryFee: true
    label: Frete grátis
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write coupon file: %v", err)
	}

	cfg, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{"API_COUPONS_FILE": path}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(cfg.Coupons.Rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(cfg.Coupons.Rules))
	}
	if cfg.Coupons.Rules[0].Code != "natal20" || cfg.Coupons.Rules[0].Value != 0.2 {
		t.Errorf("unexpected first rule: %+v", cfg.Coupons.Rules[0])
	}
	if !cfg.Coupons.Rules[1].WaivesDeliveryFee {
		t.Errorf("expected free shipping rule to waive the delivery fee")
	}
}

func TestLoadCouponFileRejectsBadRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coupons.yaml")
	content := "coupons:\n  - code: ''\n    kind: bogus\n  - code: BIG\n    kind: percentage\n    value: 2\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write coupon file: %v", err)
	}

	_, err := LoadCouponFile(path)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(validation.Fields()) != 3 {
		t.Errorf("expected 3 invalid fields, got %v", validation.Fields())
	}
}
