// crestctl is a CLI toolkit for Crestron AV control processors.
package main

import (
	"os"

	"github.com/crestkit/crestctl/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
