// Command radixdb-cli is a small operator tool for a radixdb file: put,
// get, del, scan, dbinfo, vacuum and verify, each opening the database
// fresh and running exactly one transaction.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var dbPath string

func main() {
	root := &cobra.Command{
		Use:   "radixdb-cli",
		Short: "Inspect and manipulate a radixdb file",
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "", "path to the radixdb file (required)")

	root.AddCommand(
		newPutCmd(),
		newGetCmd(),
		newDelCmd(),
		newScanCmd(),
		newDBInfoCmd(),
		newVacuumCmd(),
		newVerifyCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func requireDBPath() error {
	if dbPath == "" {
		return fmt.Errorf("--db is required")
	}
	return nil
}
