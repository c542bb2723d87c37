package main

import (
	"context"
	"fmt"
	"strings"
)

// confirmAccessPath asks the operator to confirm the new access path from
// a second session before the old one is retired. Declining rolls the
// transition back.
func confirmAccessPath(_ context.Context) bool {
	fmt.Println("The new access path is live. Verify it from a second session before continuing.")
	fmt.Print("Keep the new configuration? [y/N]: ")

	var response string
	if _, err := fmt.Scanln(&response); err != nil {
		return false
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}
