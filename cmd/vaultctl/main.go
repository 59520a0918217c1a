package main

import (
	"github.com/robotalks/pinvault/pkg/console"
)

//go-build: CGO_ENABLED=0

func main() {
	console.Main()
}
