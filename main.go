package main

import (
	"github.com/visayasmed/access-management/cmd"
)

func main() {
	cmd.Execute()
}
