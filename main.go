package main

import "github.com/iksnae/cellbook/cmd"

func main() {
	cmd.Execute()
}
