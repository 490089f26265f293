// Package version хранит сведения о сборке, подставляемые через -ldflags.
package version

import "fmt"

var (
	version = "dev"
	commit  = "unknown"
	builtAt = "unknown"
)

// Build описывает собранный бинарник.
type Build struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	BuiltAt string `json:"builtAt"`
}

// Get возвращает сведения о текущей сборке.
func Get() Build {
	return Build{Version: version, Commit: commit, BuiltAt: builtAt}
}

// String отдаёт однострочное представление для логов и --version.
func String() string {
	return fmt.Sprintf("version=%s commit=%s built_at=%s", version, commit, builtAt)
}
