// l4lbctl is the administrative CLI for l4lbd.
package main

import "github.com/ardenflow/l4lb/cmd/l4lbctl/commands"

func main() {
	commands.Execute()
}
