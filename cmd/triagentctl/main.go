package main

import (
	"log"

	"github.com/triagent/triagent/cmd/triagentctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
