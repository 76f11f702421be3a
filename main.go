/*
Copyright © 2024 Dean
*/
package main

import "rankguard/cmd"

func main() {
	cmd.Execute()
}
