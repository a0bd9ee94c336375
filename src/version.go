package coinsig

import (
	"fmt"
	"io"
	"runtime/debug"
)

// Set at build time via `-ldflags "-X 'github.com/doismellburning/coinsig/src.COINSIG_VERSION=X'"`
var COINSIG_VERSION string

func buildSetting(bi *debug.BuildInfo, key string, fallback string) string {
	if bi == nil {
		return fallback
	}
	for _, bs := range bi.Settings {
		if bs.Key == key {
			return bs.Value
		}
	}
	return fallback
}

// versionString describes this build for --version.
func versionString(prog string) string {
	var bi, _ = debug.ReadBuildInfo()

	var commit = buildSetting(bi, "vcs.revision", "unknown")
	if buildSetting(bi, "vcs.modified", "false") == "true" {
		commit += "-dirty"
	}

	var version = COINSIG_VERSION
	if version == "" {
		version = "devel"
	}

	return fmt.Sprintf("%s %s (revision %s, built at %s)", prog, version, commit, buildSetting(bi, "vcs.time", "unknown"))
}

func printVersion(w io.Writer, prog string) {
	fmt.Fprintln(w, versionString(prog))
}
