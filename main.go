package main

import (
	"os"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/cli"
)

func main() {
	os.Exit(cli.Execute())
}
