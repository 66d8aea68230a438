package model

import "fmt"

// AppInfo identifies this build of the agent. It is sent as the
// User-Agent of the upstream connection and printed by --version.
type AppInfo struct {
	Name    string
	Version string
	Author  string
}

func (a AppInfo) UserAgent() string {
	return fmt.Sprintf("%s/%s", a.Name, a.Version)
}

func (a AppInfo) String() string {
	return fmt.Sprintf("%s %s (%s)", a.Name, a.Version, a.Author)
}
