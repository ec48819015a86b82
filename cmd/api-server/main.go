package main

import "github.com/ramiqadoumi/go-task-tracker/services/api-server/cli"

func main() {
	cli.Execute()
}
