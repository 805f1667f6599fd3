package main

import (
	"fmt"
	"os"

	spoolcmder "github.com/vivek100/spool/cmd/spool"
)

func main() {
	cmd := spoolcmder.NewSpoolCmd()

	err := cmd.Execute()
	if err != nil {
		fmt.Printf("Error executing root command: %v\n", err)
		os.Exit(1)
	}
}
