package main

import "github.com/vibast-solutions/ms-go-member/cmd"

func main() {
	cmd.Execute()
}
