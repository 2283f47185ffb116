package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/rideline-io/rideline/cmd/rideline-driver/app"
)

func main() {
	app.NewApp().Run()
}
