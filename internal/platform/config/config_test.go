package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_IDENTITY_BASE_URL":   "https://identity.optima.test",
		"API_IDENTITY_JWT_SECRET": "super-secret",
		"API_DATA_BASE_URL":       "https://data.optima.test/rest/v1",
		"API_CART_STORE_PATH":     "/tmp/cart.db",
	}

	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Data.Schema != "public" {
		t.Errorf("expected default schema public, got %s", cfg.Data.Schema)
	}
	if cfg.Cart.StorageKey != "optima_cart" {
		t.Errorf("expected default storage key optima_cart, got %s", cfg.Cart.StorageKey)
	}
	if cfg.Loyalty.StartingPoints != 1000 {
		t.Errorf("expected default starting points 1000, got %d", cfg.Loyalty.StartingPoints)
	}
	if cfg.Loyalty.DefaultTier != "Silver" {
		t.Errorf("expected default tier Silver, got %s", cfg.Loyalty.DefaultTier)
	}
	if cfg.Notifications.TTL != 4*time.Second {
		t.Errorf("unexpected default notification ttl: %s", cfg.Notifications.TTL)
	}
	if cfg.Pages.HomeRoute != "dashboard" {
		t.Errorf("expected default home route dashboard, got %s", cfg.Pages.HomeRoute)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                   "9090",
		"API_SERVER_READ_TIMEOUT":           "20s",
		"API_SERVER_IDLE_TIMEOUT":           "2m",
		"API_IDENTITY_BASE_URL":             "https://identity.optima.test",
		"API_IDENTITY_API_KEY":              "anon-key",
		"API_IDENTITY_JWT_SECRET":           "super-secret",
		"API_IDENTITY_RECOVER_REDIRECT_URL": "https://app.optima.test/reset-password",
		"API_IDENTITY_TIMEOUT":              "5s",
		"API_DATA_BASE_URL":                 "https://data.optima.test/rest/v1",
		"API_DATA_SCHEMA":                   "loyalty",
		"API_CART_STORE_PATH":               "/var/lib/loyalty/cart.db",
		"API_CART_STORAGE_KEY":              "loyalty_cart",
		"API_LOYALTY_STARTING_POINTS":       "2500",
		"API_LOYALTY_DEFAULT_TIER":          "Gold",
		"API_NOTIFICATION_TTL":              "10s",
		"API_PAGES_HOME_ROUTE":              "home",
	}

	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Identity.Timeout != 5*time.Second {
		t.Errorf("unexpected identity timeout: %s", cfg.Identity.Timeout)
	}
	if cfg.Identity.RecoverRedirectURL != "https://app.optima.test/reset-password" {
		t.Errorf("unexpected recover redirect url: %s", cfg.Identity.RecoverRedirectURL)
	}
	if cfg.Data.Schema != "loyalty" {
		t.Errorf("unexpected schema %s", cfg.Data.Schema)
	}
	if cfg.Cart.StorageKey != "loyalty_cart" {
		t.Errorf("unexpected storage key %s", cfg.Cart.StorageKey)
	}
	if cfg.Loyalty.StartingPoints != 2500 {
		t.Errorf("unexpected starting points %d", cfg.Loyalty.StartingPoints)
	}
	if cfg.Loyalty.DefaultTier != "Gold" {
		t.Errorf("unexpected tier %s", cfg.Loyalty.DefaultTier)
	}
	if cfg.Notifications.TTL != 10*time.Second {
		t.Errorf("unexpected notification ttl %s", cfg.Notifications.TTL)
	}
	if cfg.Pages.HomeRoute != "home" {
		t.Errorf("unexpected home route %s", cfg.Pages.HomeRoute)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\n" +
		"API_IDENTITY_BASE_URL=https://identity.dot.test\n" +
		"API_IDENTITY_JWT_SECRET=dot-secret\n" +
		"API_DATA_BASE_URL=https://data.dot.test\n" +
		"API_CART_STORE_PATH=/tmp/dot-cart.db\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Identity.BaseURL != "https://identity.dot.test" {
		t.Errorf("expected identity base url from dotenv, got %s", cfg.Identity.BaseURL)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	validation, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := validation.Fields()
	want := map[string]bool{
		"Identity.BaseURL":   false,
		"Identity.JWTSecret": false,
		"Data.BaseURL":       false,
		"Cart.StorePath":     false,
	}
	for _, field := range fields {
		if _, ok := want[field]; ok {
			want[field] = true
		}
	}
	for field, seen := range want {
		if !seen {
			t.Errorf("expected %s in validation fields, got %v", field, fields)
		}
	}
}
