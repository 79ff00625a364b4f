// Command tranched keeps futures tranche exits in line with a rules file.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tranched:", err)
		os.Exit(1)
	}
}
