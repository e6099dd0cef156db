package main

import "github.com/kashguard/go-mpc-roomsigner/cmd"

func main() {
	cmd.Execute()
}
