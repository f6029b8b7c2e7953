package main

import "github.com/ppiankov/scriptguard/internal/cli"

func main() {
	cli.Execute()
}
