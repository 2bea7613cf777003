package main

import (
	"github.com/facevault/facevault/internal/cli"
)

func main() {
	cli.Execute()
}
