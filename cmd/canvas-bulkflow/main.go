package main

import (
	"canvas-bulkflow/cmd/canvas-bulkflow/cmd"
)

func main() {
	cmd.Execute()
}
