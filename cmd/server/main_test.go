package main

import (
	"testing"

	"storefront/backend/internal/config"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cases := map[string]config.Config{
		"short cart secret":  {CartSecret: "short"},
		"short admin token":  {CartSecret: strongSecret, AdminToken: "admin"},
		"admin equals cart":  {CartSecret: strongSecret, AdminToken: strongSecret},
		"missing everything": {},
	}
	for name, cfg := range cases {
		if err := validateSecurityConfig(cfg); err == nil {
			t.Fatalf("%s: expected weak security config to be rejected", name)
		}
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	for _, token := range []string{"", "a-long-admin-token-value"} {
		err := validateSecurityConfig(config.Config{CartSecret: strongSecret, AdminToken: token})
		if err != nil {
			t.Fatalf("expected strong config to pass, got %v", err)
		}
	}
}
