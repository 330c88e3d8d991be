// Command taskgraph runs declarative task dependency pipelines.
//
// Build metadata is set at link time:
//
//	go build -ldflags "-X github.com/gxo-labs/taskgraph/internal/cli.version=v1.0.0" ./cmd/taskgraph
package main

import (
	"os"

	"github.com/gxo-labs/taskgraph/internal/cli"
)

func main() {
	os.Exit(cli.Main(os.Args[1:]))
}
