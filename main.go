/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "mediarelay/cmd"

func main() {
	cmd.Execute()
}
