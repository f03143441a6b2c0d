package version

import (
	"bytes"
	_ "embed"
	"runtime/debug"
)

//go:embed version.txt
var versionBytes []byte

// Version returns the version of this code.
func Version() string {
	if v := string(bytes.TrimSpace(versionBytes)); v != "" {
		return v
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "(devel)"
}
