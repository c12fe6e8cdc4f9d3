/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "concierge/cmd"

func main() {
	cmd.Execute()
}
