package main

import "github.com/oshokin/bundle-launcher/cmd/bundle-supervisor/cmd"

func main() {
	cmd.Execute()
}
