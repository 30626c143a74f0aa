package main

import "github.com/gosocks/gosocks-go/cmd/gosocks/commands"

func main() {
	commands.Execute()
}
