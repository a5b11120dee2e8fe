// Command standoffalign relocates aligned sentences in extracted document
// blocks and rebuilds their standoff annotations.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
