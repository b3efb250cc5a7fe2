package app

import (
	"bytes"
	"strings"
	"testing"
)

// TestRun_ServeCommand_FailsWithoutDB はserveコマンドがDB疎通確認に失敗した場合にエラーを返すことを検証する。
func TestRun_ServeCommand_FailsWithoutDB(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	err := Run(&buf, []string{"serve"})
	if err == nil {
		t.Fatal("Run(serve) should fail when the database is unreachable")
	}
	if !strings.Contains(err.Error(), "database") {
		t.Errorf("error should mention database, got: %v", err)
	}
}

// TestRun_WorkerCommand_FailsWithoutDB はworkerコマンドがDB接続を試みることを検証する。
func TestRun_WorkerCommand_FailsWithoutDB(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"worker"}); err == nil {
		t.Fatal("Run(worker) should fail when the database is unreachable")
	}
}

// TestRun_DefaultCommand_FailsWithoutDB はデフォルトコマンド（serve）がDB接続を試みることを検証する。
func TestRun_DefaultCommand_FailsWithoutDB(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	if err := Run(&buf, []string{}); err == nil {
		t.Fatal("Run([]) should fail when the database is unreachable")
	}
}

func TestRun_SeedCommand_RequiresPassword(t *testing.T) {
	setTestEnv(t)
	t.Setenv("SEED_ADMIN_PASSWORD", "")

	var buf bytes.Buffer
	err := Run(&buf, []string{"seed"})
	if err == nil {
		t.Fatal("Run(seed) without SEED_ADMIN_PASSWORD should return error")
	}
	if !strings.Contains(err.Error(), "SEED_ADMIN_PASSWORD") {
		t.Errorf("error should mention SEED_ADMIN_PASSWORD, got: %v", err)
	}
}

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_ACCESS_SECRET", "")
	t.Setenv("JWT_REFRESH_SECRET", "")

	var buf bytes.Buffer
	err := Run(&buf, []string{"serve"})
	if err == nil {
		t.Fatal("Run with missing env should return error")
	}
}

func TestRun_Healthcheck_FailsWhenServerDown(t *testing.T) {
	t.Setenv("SERVER_PORT", "1")

	var buf bytes.Buffer
	if err := Run(&buf, []string{"healthcheck"}); err == nil {
		t.Fatal("healthcheck should fail when no server is listening")
	}
}
