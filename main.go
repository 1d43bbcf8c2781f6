package main

import "github.com/shipvision/shipclf/cmd"

func main() {
	cmd.Execute()
}
