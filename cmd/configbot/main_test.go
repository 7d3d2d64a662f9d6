package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nexanet/configbot/internal/config"
	"github.com/nexanet/configbot/internal/security"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.EnvConfigPath, filepath.Join(dir, "config.yaml"))
	t.Setenv(config.EnvDBConnection, "file:"+filepath.Join(dir, "cli.db"))
	t.Setenv(config.EnvBotToken, "bot-token")
	t.Setenv(config.EnvOperatorID, "7108127485")
	t.Setenv(config.EnvMembershipChannel, "@nexanet")
	t.Setenv(config.EnvMembershipURL, "http://127.0.0.1:9/members")
	t.Setenv(config.EnvPassphrase, "cli-passphrase")
	t.Setenv(config.EnvJWTSecret, "cli-jwt-secret")
	t.Setenv(config.EnvFile, filepath.Join(dir, "missing.env"))
}

func TestRun_TokenCommand(t *testing.T) {
	setRequiredEnv(t)
	var out bytes.Buffer
	if err := run(context.Background(), []string{"token"}, &out); err != nil {
		t.Fatalf("run token: %v", err)
	}
	claims, err := security.ParseAdminToken("cli-jwt-secret", strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("parse printed token: %v", err)
	}
	if claims.OperatorID != 7108127485 {
		t.Fatalf("expected operator subject, got %d", claims.OperatorID)
	}
}

func TestRun_SweepCommand(t *testing.T) {
	setRequiredEnv(t)
	t.Chdir(t.TempDir())
	var out bytes.Buffer
	if err := run(context.Background(), []string{"sweep"}, &out); err != nil {
		t.Fatalf("run sweep: %v", err)
	}
	if !strings.Contains(out.String(), `"expired_users": 0`) {
		t.Fatalf("unexpected sweep output %q", out.String())
	}
}

func TestRun_Rejections(t *testing.T) {
	setRequiredEnv(t)
	if err := run(context.Background(), []string{"-port", "70000", "token"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected invalid port error")
	}
	if err := run(context.Background(), []string{"frobnicate"}, &bytes.Buffer{}); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestConfigureLogging(t *testing.T) {
	if err := configureLogging(config.LoggingConfig{Level: "debug", Format: "json"}); err != nil {
		t.Fatalf("configure logging: %v", err)
	}
	if err := configureLogging(config.LoggingConfig{Level: "loud"}); err == nil {
		t.Fatalf("expected bad level error")
	}
	if err := configureLogging(config.LoggingConfig{Level: "info", Format: "xml"}); err == nil {
		t.Fatalf("expected bad format error")
	}
	_ = configureLogging(config.LoggingConfig{Level: "info", Format: "text"})
}
