// Command sync-low runs the low sync tier once.
package main

import (
	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/meschain/marketsync/internal/interfaces/cli"
)

func main() {
	cli.Main(marketsync.TierLow)
}
