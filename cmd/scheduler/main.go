package main

import "github.com/ramiqadoumi/go-task-tracker/services/scheduler/cli"

func main() {
	cli.Execute()
}
