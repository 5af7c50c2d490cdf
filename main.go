package main

import (
	"fmt"
	"os"

	"github.com/tphakala/radiotracker/cmd"
	"github.com/tphakala/radiotracker/internal/buildinfo"
)

// Set via -ldflags "-X main.version=... -X main.commit=... -X main.buildDate=..."
var (
	version   string
	commit    string
	buildDate string
)

func main() {
	info := buildinfo.NewContext(version, commit, buildDate)

	if err := cmd.RootCommand(info).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
