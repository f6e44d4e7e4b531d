package cli

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/sdejongh/replisync/pkg/config"
)

// Build information - set via ldflags by cmd/replisync
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// versionInfo is what `replisync version` reports
type versionInfo struct {
	Version   string   `json:"version"`
	Commit    string   `json:"commit"`
	BuildDate string   `json:"build_date"`
	GoVersion string   `json:"go_version"`
	Platform  string   `json:"platform"`
	Remotes   []string `json:"remotes"`
}

// currentVersion merges the ldflags values with the VCS stamp the Go toolchain
// records, so `go install` builds still report a commit
func currentVersion() versionInfo {
	info := versionInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Remotes:   []string{config.RemoteFolder, config.RemoteS3, config.RemoteMinio, config.RemoteDrive},
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && info.Commit == "none":
			info.Commit = s.Value
		case s.Key == "vcs.time" && info.BuildDate == "unknown":
			info.BuildDate = s.Value
		case s.Key == "vcs.modified" && s.Value == "true" && !strings.HasSuffix(info.Commit, "-dirty") && info.Commit != "none":
			info.Commit += "-dirty"
		}
	}
	return info
}

func writeVersion(w io.Writer, info versionInfo, format string, short bool) error {
	if short {
		_, err := fmt.Fprintln(w, info.Version)
		return err
	}

	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	fmt.Fprintf(w, "replisync %s\n", info.Version)
	fmt.Fprintf(w, "  Commit:     %s\n", info.Commit)
	fmt.Fprintf(w, "  Built:      %s\n", info.BuildDate)
	fmt.Fprintf(w, "  Go version: %s\n", info.GoVersion)
	fmt.Fprintf(w, "  OS/Arch:    %s\n", info.Platform)
	_, err := fmt.Fprintf(w, "  Remotes:    %s\n", strings.Join(info.Remotes, ", "))
	return err
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	var (
		short  bool
		format string
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display the version, commit and build date, the Go version and the remote kinds this build supports.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "human" && format != "json" {
				return fmt.Errorf("invalid output format %q: must be 'human' or 'json'", format)
			}
			return writeVersion(cmd.OutOrStdout(), currentVersion(), format, short)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "print only the version number")
	cmd.Flags().StringVarP(&format, "output", "o", "human", "output format: human, json")

	return cmd
}
