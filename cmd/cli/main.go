package main

import (
	"fmt"
	"os"

	"github.com/davmie/userbase/cmd/cli/root"

	_ "github.com/davmie/userbase/cmd/cli/auth"
	_ "github.com/davmie/userbase/cmd/cli/users"
)

func main() {
	if err := root.GetRoot().Execute(); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}
