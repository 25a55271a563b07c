package main

import (
	"context"
	"log"
	"os"

	"github.com/abiiranathan/pdfmark/cli"
	"github.com/abiiranathan/pdfmark/mcpserver"
	"github.com/abiiranathan/pdfmark/server"
)

const version = "0.1.0"

// Default configuration for the CLI
var config = &cli.DefaultConfig

func startServer() {
	lib, db, err := cli.OpenLibrary(context.Background(), config, false)
	if err != nil {
		log.Fatalln(err)
	}
	defer db.Close()

	server.Run(lib, config.Port)
}

func startMCP() {
	lib, db, err := cli.OpenLibrary(context.Background(), config, true)
	if err != nil {
		log.Fatalln(err)
	}
	defer db.Close()

	if err := mcpserver.Serve(mcpserver.New(lib, version)); err != nil {
		log.Println(err)
	}
}

func main() {
	log.SetPrefix("[pdfmark]: ")
	log.SetFlags(log.Lshortfile)

	// Parse the command line arguments
	ctx := cli.DefineFlags(config, startServer, startMCP)
	subcmd, err := ctx.Parse(os.Args)
	if err != nil {
		log.Fatalln(err)
	}

	// If the subcommand is nil, print the usage and exit
	if subcmd == nil {
		ctx.PrintUsage(os.Stdout)
		os.Exit(1)
	}

	// Run the subcommand
	subcmd.Handler()
}
