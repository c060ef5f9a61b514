// Package version resolves build metadata stamped at link time, falling
// back to module build info when the binary was installed with go install.
package version

import "runtime/debug"

var (
	// Version is the release version (set via -ldflags).
	Version = ""
	// Commit is the git commit hash (set via -ldflags).
	Commit = ""
	// BuildTime is the build timestamp (set via -ldflags).
	BuildTime = ""
)

type Info struct {
	Version   string
	Commit    string
	BuildTime string
}

func Resolve() Info {
	resolved := Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		if resolved.Version == "" {
			resolved.Version = "devel"
		}
		return resolved
	}

	if resolved.Version == "" {
		resolved.Version = bi.Main.Version
		if resolved.Version == "" || resolved.Version == "(devel)" {
			resolved.Version = "devel"
		}
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if resolved.Commit == "" {
				resolved.Commit = s.Value
			}
		case "vcs.time":
			if resolved.BuildTime == "" {
				resolved.BuildTime = s.Value
			}
		}
	}
	return resolved
}

func String() string {
	info := Resolve()
	if info.Commit == "" {
		return info.Version
	}
	return info.Version + " (" + shortCommit(info.Commit) + ")"
}

func shortCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}
