package main

import (
	"os"

	trackscmder "github.com/papercomputeco/tracks/cmd/tracks"
)

func main() {
	cmd := trackscmder.NewTracksCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
