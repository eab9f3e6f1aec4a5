// Command bulkload loads key/value records from CSV files into bbolt, etcd
// or a compacted Kafka topic.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}
