package session

import (
	"testing"

	"github.com/sereno-app/sereno/internal/config"
)

func TestResolve(t *testing.T) {
	t.Setenv(BaseDirEnv, t.TempDir())

	if got := Resolve(""); got != DefaultProfileName {
		t.Errorf("Resolve() without config = %q, want %q", got, DefaultProfileName)
	}

	cfg := config.Default()
	cfg.DefaultProfile = "work"
	if err := config.Save(ConfigPath(), cfg); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(""); got != "work" {
		t.Errorf("Resolve() = %q, want work", got)
	}
	if got := Resolve("ops"); got != "ops" {
		t.Errorf("Resolve(ops) = %q, want ops", got)
	}
}
