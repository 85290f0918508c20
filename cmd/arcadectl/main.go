package main

import "github.com/mcoot/arcaderooms/internal/cli"

func main() {
	cli.Execute()
}
