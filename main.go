package main

import (
	"Videoflix/cmd"
)

func main() {
	cmd.Execute()
}
