// Package version carries build metadata stamped in by the linker:
//
//	go build -ldflags "-X github.com/linjoshua/ChatGPT-Line-Bot/internal/version.Version=1.0.0
//	  -X github.com/linjoshua/ChatGPT-Line-Bot/internal/version.Commit=abc123
//	  -X github.com/linjoshua/ChatGPT-Line-Bot/internal/version.Date=2026-01-01"
package version

import (
	"fmt"
	"runtime"
)

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info returns the one-line banner printed by `linebot version`.
func Info() string {
	return fmt.Sprintf("linebot %s (commit: %s, built: %s, %s/%s)",
		Version, short(Commit), Date, runtime.GOOS, runtime.GOARCH)
}

// UserAgent identifies the relay to remote servers, e.g. "linebot/1.0.0".
func UserAgent() string {
	return "linebot/" + Version
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
