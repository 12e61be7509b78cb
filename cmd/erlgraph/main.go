package main

import "github.com/mvp-joe/erlgraph/internal/cli"

func main() {
	cli.Execute()
}
