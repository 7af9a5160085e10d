package main

import "github.com/oshokin/bundle-launcher/cmd/bundle-packager/cmd"

func main() {
	cmd.Execute()
}
