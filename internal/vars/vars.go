// Package vars holds build-time variables populated via the linker (ldflags).
package vars

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"time"
)

// License of the project
const License = "MIT"

// Set with -ldflags "-X github.com/woozymasta/teestat/internal/vars.Version=v1.2.3"
var (
	Name    = "teestat"
	Version = "dev"
	Commit  = "unknown"
	URL     = "https://github.com/woozymasta/teestat"

	// Revision and BuildTime are parsed from _revision and _buildTime at init.
	Revision  = 0
	BuildTime = time.Unix(0, 0).UTC()

	_revision  string
	_buildTime string
)

func init() {
	if n, err := strconv.Atoi(_revision); err == nil {
		Revision = n
	}
	if t, err := time.Parse(time.RFC3339, _buildTime); err == nil {
		BuildTime = t.UTC()
	}
}

// BuildInfo is the JSON form of the build variables served by /api/version.
type BuildInfo struct {
	BuildTime   time.Time `json:"build_time"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Commit      string    `json:"commit"`
	CommitShort string    `json:"commit_short,omitempty"`
	GoVersion   string    `json:"go_version"`
	URL         string    `json:"url,omitempty"`
	License     string    `json:"license,omitempty"`
	Revision    int       `json:"revision,omitempty"`
}

// Info returns the current build metadata.
func Info() BuildInfo {
	return BuildInfo{
		Name:        Name,
		Version:     Version,
		Commit:      Commit,
		CommitShort: CommitShort(),
		Revision:    Revision,
		BuildTime:   BuildTime,
		GoVersion:   runtime.Version(),
		URL:         URL,
		License:     License,
	}
}

// Print writes the build information to stdout.
func Print() {
	Fprint(os.Stdout)
}

// Fprint writes the build information to w, one key per line.
func Fprint(w io.Writer) {
	i := Info()
	rows := [][2]string{
		{"name", i.Name},
		{"url", i.URL},
		{"version", i.Version},
		{"commit", i.Commit},
		{"revision", strconv.Itoa(i.Revision)},
		{"built", i.BuildTime.Format(time.RFC3339)},
		{"go", i.GoVersion},
		{"license", i.License},
	}
	for _, r := range rows {
		_, _ = fmt.Fprintf(w, "%-9s %s\n", r[0]+":", r[1])
	}
}

// UserAgent identifies the service in outbound HTTP requests.
func UserAgent() string {
	return Name + "/" + Version + " (+" + URL + ")"
}

// CommitShort returns the first 7 characters of the commit hash.
func CommitShort() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}
	return Commit
}
