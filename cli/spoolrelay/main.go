package main

import (
	"fmt"
	"os"

	servecmder "github.com/vivek100/spool/cmd/spool/serve"
)

func main() {
	cmd := servecmder.NewServeCmd()

	cmd.Use = "spoolrelay"
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .spool/ config directory")

	err := cmd.Execute()
	if err != nil {
		fmt.Printf("Error executing root command: %v\n", err)
		os.Exit(1)
	}
}
