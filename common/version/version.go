package version

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"
)

// Set at build time with -ldflags "-X github.com/t2bot/s3-folder-export/common/version.Version=..."
var GitCommit string
var Version string

const AppName = "s3-folder-export"

var defaultsOnce sync.Once

func SetDefaults() {
	defaultsOnce.Do(func() {
		if GitCommit == "" {
			GitCommit = ".dev"
			if build, ok := debug.ReadBuildInfo(); ok {
				for _, setting := range build.Settings {
					if setting.Key == "vcs.revision" {
						GitCommit = setting.Value
						break
					}
				}
			}
		}
		if Version == "" {
			Version = "unknown"
		}
	})
}

// Release identifies the build in error reports.
func Release() string {
	SetDefaults()
	return fmt.Sprintf("%s@%s-%s", AppName, Version, GitCommit)
}

// UserAgentVersion is what the object store clients append to their user agent.
func UserAgentVersion() string {
	SetDefaults()
	return Version + "-" + GitCommit
}

func Print(usingLogger bool) {
	SetDefaults()

	if usingLogger {
		logrus.WithFields(logrus.Fields{
			"version": Version,
			"commit":  GitCommit,
		}).Info("Starting " + AppName)
	} else {
		fmt.Printf("%s %s (commit %s)\n", AppName, Version, GitCommit)
	}
}
