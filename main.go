package main

import "github.com/iksnae/claw-dash/cmd"

func main() {
	cmd.Execute()
}
