package main

import "fileno-manager/cmd"

func main() {
	cmd.Execute()
}
