package main

import "github.com/nextlevelbuilder/researcher/cmd"

func main() {
	cmd.Execute()
}
