package main

import "github.com/substrate-debug-kit/offline-election/cmd"

func main() {
	cmd.Execute()
}
