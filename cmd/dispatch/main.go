package main

import "github.com/medscribe/dispatch/internal/cli"

func main() {
	cli.Execute()
}
