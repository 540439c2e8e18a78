// Package main is the autoseg CLI command itself.
package main

import (
	"log"
	"os"

	"github.com/seglab/autoseg/cli"
)

func main() {
	if err := cli.NewApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
