package main

import (
	"fmt"
	"os"

	"github.com/insptop/inspirer-foundation"
	"github.com/insptop/inspirer-foundation/internal/auth"
)

func main() {
	if err := inspirer.Run(auth.New(), inspirer.WithName(auth.Name)); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", os.Args[0], err)
		os.Exit(1)
	}
}
