package main

import "github.com/ramiqadoumi/go-task-tracker/services/projector/cli"

func main() {
	cli.Execute()
}
