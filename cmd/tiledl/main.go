// Command tiledl drives the download engine from the terminal: it can
// validate a URL template, resolve a service's supported CRS list, or run a
// full bounding-box download with a live progress bar.
package main

import "github.com/openbasemap/tiledl/internal/cli"

func main() {
	cli.Execute()
}
