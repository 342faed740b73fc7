package main

import "github.com/devopsext/asynctrace/cmd"

func main() {
	cmd.Execute()
}
