package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cliConfig = `
[admin]
jwt_secret = "cli-secret"

[bot]
app_id = "app-1"
app_password = "pw"
hmac_secret = "chan-secret"
issuers = ["https://issuer.test"]
`

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(cliConfig), 0o600))
	t.Setenv("CONFIG_PATH", path)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return strings.TrimSpace(out.String())
}

func TestTokenCmd_Admin(t *testing.T) {
	raw := runCLI(t, "token", "--subject", "ops")

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte("cli-secret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ops", claims["sub"])
	assert.Equal(t, "admin", claims["typ"])
}

func TestTokenCmd_Channel(t *testing.T) {
	raw := runCLI(t, "token", "--channel", "--service-url", "https://smba.example.com/")

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte("chan-secret"), nil
	}, jwt.WithAudience("app-1"), jwt.WithIssuer("https://issuer.test"))
	require.NoError(t, err)
	assert.Equal(t, "https://smba.example.com/", claims["serviceurl"])
}

func TestVersionCmd(t *testing.T) {
	assert.Equal(t, version, runCLI(t, "version"))
}
