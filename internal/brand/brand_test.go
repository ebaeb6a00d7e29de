package brand

import (
	"path/filepath"
	"testing"
)

func TestGet(t *testing.T) {
	b := Get()
	if b.Name == "" {
		t.Error("Brand name should not be empty")
	}
	if Version == "" {
		t.Error("Global Version should be initialized (to dev default)")
	}
	if LowerName != "droplist" {
		t.Errorf("LowerName = %q, want droplist", LowerName)
	}
}

func TestUserAgent(t *testing.T) {
	if ua := UserAgent("1.2.0"); ua != "droplist/1.2.0" {
		t.Errorf("UserAgent = %q", ua)
	}
	if ua := UserAgent(""); ua != "droplist/dev" {
		t.Errorf("UserAgent default = %q", ua)
	}
}

func TestGetDirectories(t *testing.T) {
	t.Setenv(ConfigEnvPrefix+"_PREFIX", "")
	t.Setenv(ConfigEnvPrefix+"_STATE_DIR", "")
	t.Setenv(ConfigEnvPrefix+"_RUN_DIR", "")
	t.Setenv(ConfigEnvPrefix+"_CONFIG_DIR", "")

	if GetStateDir() != DefaultStateDir {
		t.Errorf("Expected default state dir %s, got %s", DefaultStateDir, GetStateDir())
	}
	if GetSocketPath() != filepath.Join(DefaultRunDir, SocketName) {
		t.Errorf("unexpected socket path %s", GetSocketPath())
	}

	t.Setenv(ConfigEnvPrefix+"_PREFIX", "/tmp/dl")
	if GetStateDir() != "/tmp/dl/state" {
		t.Errorf("Expected prefixed state dir, got %s", GetStateDir())
	}
	if GetConfigPath() != "/tmp/dl/config/"+ConfigFileName {
		t.Errorf("Expected prefixed config path, got %s", GetConfigPath())
	}

	t.Setenv(ConfigEnvPrefix+"_STATE_DIR", "/srv/cache")
	if GetStateDir() != "/srv/cache" {
		t.Errorf("Explicit state dir should win, got %s", GetStateDir())
	}
}
