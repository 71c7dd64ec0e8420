package infra

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureDir_CreatesNestedPath(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")

	if err := EnsureDir(nested); err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}
	info, err := os.Stat(nested)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected %s to exist as a directory, err=%v", nested, err)
	}
}

func TestCreateLockFile_SecondCallFails(t *testing.T) {
	dir := t.TempDir()

	unlock, err := CreateLockFile(dir)
	if err != nil {
		t.Fatalf("first CreateLockFile failed: %v", err)
	}
	defer unlock()

	if _, err := CreateLockFile(dir); err == nil {
		t.Fatal("expected second CreateLockFile against the same workspace to fail")
	}
}

func TestCreateLockFile_UnlockAllowsReacquire(t *testing.T) {
	dir := t.TempDir()

	unlock, err := CreateLockFile(dir)
	if err != nil {
		t.Fatalf("CreateLockFile failed: %v", err)
	}
	unlock()

	if _, err := CreateLockFile(dir); err != nil {
		t.Fatalf("expected reacquire after unlock to succeed, got %v", err)
	}
}

func TestResolveConfigPath_FallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(cwd)

	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir failed: %v", err)
	}

	got := ResolveConfigPath()
	want := filepath.Join("configs", "config.yaml")
	if got != want {
		t.Errorf("expected default %q, got %q", want, got)
	}
}
