package main

import "github.com/oshokin/bundle-launcher/cmd/bundle-launcher/cmd"

func main() {
	cmd.Execute()
}
