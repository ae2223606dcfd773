// Package main hosts the crawler entrypoint.
package main

import "github.com/ending-signal/crawler/cmd"

func main() {
	cmd.Execute()
}
