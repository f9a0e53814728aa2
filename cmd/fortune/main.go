// Command fortune serves fortunes behind an x402 paywall and opens them with
// a wallet that pays the challenge.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
