package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"rateshop-backend/internal/shared/auth"
)

func resetViper() {
	viper.Reset()
	viper.SetEnvPrefix("RATESHOP")
	viper.AutomaticEnv()
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRootCommand_Help(t *testing.T) {
	resetViper()

	out, err := execute(t, "help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, sub := range []string{"submit", "status", "results", "token"} {
		if !strings.Contains(out, sub) {
			t.Errorf("expected %q in help output, got: %s", sub, out)
		}
	}
}

func TestTokenCommand_SignsVerifiableToken(t *testing.T) {
	resetViper()
	viper.Set("jwt_secret", "s3cret")

	out, err := execute(t, "token", "--sub", "user-9", "--email", "ops@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	verifier, err := auth.NewHMACVerifier("s3cret", "dev")
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	claims, err := verifier.Verify(context.Background(), strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("token did not verify: %v", err)
	}
	if claims.Sub != "user-9" {
		t.Errorf("expected sub user-9, got %q", claims.Sub)
	}
	if claims.Email != "ops@example.com" {
		t.Errorf("expected email claim, got %q", claims.Email)
	}
}
