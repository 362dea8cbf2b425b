package main

import "github.com/ValentinKolb/binrpc/cmd"

func main() {
	cmd.Execute()
}
