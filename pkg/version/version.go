package version

import (
	"fmt"
	"runtime"
)

// Version and Commit are overridden at build time:
// go build -ldflags "-X github.com/VeltarosLabs/mythcoin/pkg/version.Version=0.2.0 -X github.com/VeltarosLabs/mythcoin/pkg/version.Commit=$(git rev-parse --short HEAD)"
var (
	Version = "0.1.0"
	Commit  = "dev"
)

const Name = "mythcoin"

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (i Info) String() string {
	return fmt.Sprintf("%s %s (%s, %s, %s)", Name, i.Version, i.Commit, i.GoVersion, i.Platform)
}
