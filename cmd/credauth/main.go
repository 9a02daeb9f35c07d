package main

import "github.com/mcoot/credauth/internal/cli"

func main() {
	cli.Execute()
}
