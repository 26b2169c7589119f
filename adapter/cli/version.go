package cli

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X github.com/felixgeelhaar/reservo/adapter/cli.Version=...".
var (
	Version   = "dev"
	Commit    = ""
	BuildDate = ""
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// CurrentBuild reports the linker-provided values, falling back to the VCS
// stamp the go tool embeds when they are unset.
func CurrentBuild() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.fillFromVCS(bi)
	}
	return info
}

func (b *BuildInfo) fillFromVCS(bi *debug.BuildInfo) {
	if b.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		b.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "" {
				b.Commit = s.Value
			}
		case "vcs.time":
			if b.BuildDate == "" {
				b.BuildDate = s.Value
			}
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}
}

func (b BuildInfo) shortCommit() string {
	if len(b.Commit) > 12 {
		return b.Commit[:12]
	}
	return b.Commit
}

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := CurrentBuild()
		if jsonOutput {
			return PrintJSON(cmd, info)
		}

		out := cmd.OutOrStdout()
		if versionShort {
			fmt.Fprintln(out, info.Version)
			return nil
		}
		fmt.Fprintf(out, "reservo %s (%s, %s)\n", info.Version, info.GoVersion, info.Platform)
		if info.Commit != "" {
			dirty := ""
			if info.Modified {
				dirty = " (modified)"
			}
			fmt.Fprintf(out, "  commit: %s%s\n", info.shortCommit(), dirty)
		}
		if info.BuildDate != "" {
			fmt.Fprintf(out, "  built:  %s\n", info.BuildDate)
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "print the version only")
	rootCmd.AddCommand(versionCmd)
}
