package main

import (
	"os"

	"reposync/cmd"
)

func main() {
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "status")
	}
	cmd.Execute()
}
