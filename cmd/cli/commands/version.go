package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// VersionInfo is the JSON shape of the version command.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the version of the stakedeck CLI and build information.",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := VersionInfo{
				Version:   GetVersion(),
				Commit:    GetCommit(),
				BuildDate: BuildDate,
				GoVersion: GetGoVersion(),
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			}
			out := cmd.OutOrStdout()
			if JSONOutput {
				return printJSON(out, info)
			}
			fmt.Fprintln(out, "stakedeck CLI")
			fmt.Fprintln(out, "=============")
			fmt.Fprintf(out, "Version:    %s\n", info.Version)
			fmt.Fprintf(out, "Commit:     %s\n", info.Commit)
			fmt.Fprintf(out, "Build Date: %s\n", info.BuildDate)
			fmt.Fprintf(out, "Go Version: %s\n", info.GoVersion)
			fmt.Fprintf(out, "OS/Arch:    %s\n", info.Platform)
			return nil
		},
	}
}
