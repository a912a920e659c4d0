// Command calltree manages test cases whose steps call other test cases.
package main

import "github.com/mesh-intelligence/calltree/internal/cli"

func main() {
	cli.Execute()
}
