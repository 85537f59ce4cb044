package main

import (
	"context"

	"github.com/fortuna/clio/cmd/clio/commands"
)

func main() {
	commands.ExecuteContext(context.Background())
}
