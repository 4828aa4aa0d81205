package main

import "github.com/guimove/fleetfit/cmd"

func main() {
	cmd.Execute()
}
