package main

import "github.com/nextlevelbuilder/pagelens/cmd"

func main() {
	cmd.Execute()
}
