package main

import "github.com/bizmon/eventrelay/internal/cli"

func main() {
	cli.Execute()
}
