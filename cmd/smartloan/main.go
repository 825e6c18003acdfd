// Command smartloan inspects and edits Smart Loan configuration sessions,
// validates rule catalogs and serves the configuration API over HTTP.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
