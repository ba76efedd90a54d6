package main

import "github.com/saturnino-fabrica-de-software/facetag/cmd/facetagctl/cmd"

func main() {
	cmd.Execute()
}
