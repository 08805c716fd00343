package main

import "github.com/forPelevin/vidqa/internal/cli"

func main() {
	cli.Main()
}
