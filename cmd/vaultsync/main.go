// Command vaultsync manages encrypted vaults that merge cleanly across devices.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
