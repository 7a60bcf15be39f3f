package main

import "distribution-admin/internal/cli"

func main() {
	cli.Execute()
}
