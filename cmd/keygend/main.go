// Command keygend runs one OPRF key-generation node: it watches the
// OprfKeyRegistry contract, participates in DKG and reshare rounds, and
// persists its shares.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
