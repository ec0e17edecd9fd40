// Command tile3d drives a 3D Tiles tileset against a camera path.
package main

import "github.com/MeKo-Tech/tile3d/internal/cmd"

func main() {
	cmd.Execute()
}
