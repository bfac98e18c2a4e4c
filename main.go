package main

import "github.com/vibewp/vps-audit/cmd"

func main() {
	cmd.Execute()
}
