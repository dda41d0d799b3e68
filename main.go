package main

import (
	"os"

	"github.com/pverne/scanledger/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
