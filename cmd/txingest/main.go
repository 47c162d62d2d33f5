package main

import (
	"os"

	"github.com/JonMunkholm/txingest/internal/commands"
)

func main() {
	os.Exit(commands.Execute())
}
