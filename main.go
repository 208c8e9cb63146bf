package main

import "github.com/hivecouncil/hivecouncil/internal/cli"

func main() {
	cli.Execute()
}
