package main

import "github.com/cameroncuttingedge/tictactoe-arena/cmd"

func main() {
	cmd.Execute()
}
