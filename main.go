/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "routerbot/cmd"

func main() {
	cmd.Execute()
}
