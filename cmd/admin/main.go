package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	persistlog "simbridge.ai/internal/persistence/log"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "metrics":
			metricsCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints the recording files under the recording directory.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dir := fs.String("dir", "./data/recordings", "recording directory")
	_ = fs.Parse(args)

	for _, prefix := range []string{"states", "commands"} {
		files, err := persistlog.Files(filepath.Join(*dir, prefix), prefix)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		for _, f := range files {
			fmt.Println(f)
		}
	}
}
