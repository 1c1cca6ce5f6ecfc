package session

import (
	"os"
	"path/filepath"

	"github.com/sereno-app/sereno/internal/lock"
)

// BaseDirEnv points the state tree somewhere other than ~/.sereno.
const BaseDirEnv = "SERENO_HOME"

// Layout of one profile directory:
//
//	profiles/<name>/serenod.sock
//	profiles/<name>/LOCK
//	profiles/<name>/rooms.db
//	profiles/<name>/.env
//	profiles/<name>/logs/serenod.log
const (
	profilesDir = "profiles"
	socketFile  = "serenod.sock"
	dbFile      = "rooms.db"
	envFile     = ".env"
	logsDir     = "logs"
	logFile     = "serenod.log"
	configFile  = "config.toml"
)

func BaseDir() string {
	if dir := os.Getenv(BaseDirEnv); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".sereno")
}

// Dir is the state directory of profile name.
func Dir(name string) string { return filepath.Join(BaseDir(), profilesDir, name) }

func SocketPath(name string) string { return filepath.Join(Dir(name), socketFile) }
func LockPath(name string) string   { return filepath.Join(Dir(name), lock.FileName) }
func DBPath(name string) string     { return filepath.Join(Dir(name), dbFile) }
func EnvPath(name string) string    { return filepath.Join(Dir(name), envFile) }
func LogDir(name string) string     { return filepath.Join(Dir(name), logsDir) }
func LogPath(name string) string    { return filepath.Join(LogDir(name), logFile) }

// ConfigPath is shared by every profile.
func ConfigPath() string { return filepath.Join(BaseDir(), configFile) }

// EnsureDir creates the profile and log directories, readable only by the
// owner.
func EnsureDir(name string) error {
	return os.MkdirAll(LogDir(name), 0o700)
}
