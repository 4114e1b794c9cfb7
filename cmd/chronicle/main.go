package main

import "github.com/scribelab/chronicle/internal/cli"

func main() {
	cli.Execute()
}
