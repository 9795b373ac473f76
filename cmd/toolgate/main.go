// Package main implements the toolgate CLI application.
package main

// file: cmd/toolgate/main.go

import (
	"fmt"
	"log"
	"os"
)

// main parses command line arguments and dispatches to the appropriate command.
func main() {
	commands := RegisterCommands()

	if len(os.Args) < 2 {
		if err := commands["help"].Run([]string{}); err != nil {
			log.Fatalf("Error: %v", err)
		}
		return
	}

	cmdName := os.Args[1]
	cmd, ok := commands[cmdName]
	if !ok {
		fmt.Printf("Unknown command: %s\n\n", cmdName)
		if err := commands["help"].Run([]string{}); err != nil {
			log.Fatalf("Error: %v", err)
		}
		os.Exit(1)
	}

	if err := cmd.Run(os.Args[2:]); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
