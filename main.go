package main

import "github.com/go-apfsro/apfsro/cmd"

func main() {
	cmd.Execute()
}
