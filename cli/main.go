package main

import (
	"github.com/labelworks/pachstore/cli/cmd"
)

func main() {
	cmd.Execute()
}
