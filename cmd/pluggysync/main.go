// Command pluggysync pulls an item's accounts and transactions from Pluggy,
// stores the transactions and forwards the full document downstream.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
