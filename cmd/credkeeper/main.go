package main

import (
	"context"
	"log"
	"os"

	"github.com/credkeeper/credkeeper/internal/buildinfo"
	"github.com/credkeeper/credkeeper/internal/cli"
	"github.com/credkeeper/credkeeper/internal/config"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := cli.NewApp(ctx, cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(ctx)

}
