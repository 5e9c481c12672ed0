package main

import "mandi-advisor/internal/cli"

func main() {
	cli.Execute()
}
