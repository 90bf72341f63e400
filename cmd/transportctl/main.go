package main

import "github.com/Goden-Gun/transport-core/cmd/transportctl/cmd"

func main() {
	cmd.Execute()
}
