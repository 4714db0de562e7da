// Command stride is an offline-first planner for tasks, projects, habits and
// notes.
package main

import "github.com/mesh-intelligence/stride/internal/cli"

func main() {
	cli.Execute()
}
