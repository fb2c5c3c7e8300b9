package main

import (
	"fmt"
	"os"

	"github.com/ecommerce-chatbot/backend/cmd/chatctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
