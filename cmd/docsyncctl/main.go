package main

import "docsync/cmd/docsyncctl/cmd"

func main() {
	cmd.Execute()
}
