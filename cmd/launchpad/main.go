// ====================================
// File: cmd/launchpad/main.go
// ====================================
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
