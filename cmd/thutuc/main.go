// Package main provides the entry point for the thutuc CLI.
package main

import (
	"os"

	"github.com/nhdandz/ThuTucHanhChinh/cmd/thutuc/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
