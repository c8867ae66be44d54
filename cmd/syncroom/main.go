package main

import "github.com/x5uw/SyncRoom/internal/cli"

func main() {
	cli.Execute()
}
