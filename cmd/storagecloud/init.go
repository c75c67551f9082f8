package main

import (
	"flag"
	"fmt"

	"github.com/marmos91/storagecloud/pkg/config"
)

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite an existing configuration file")
	path := fs.String("path", "", "Write the file here instead of the default location")
	_ = fs.Parse(args)

	var (
		written string
		err     error
	)
	if *path != "" {
		written, err = config.InitConfigToPath(*path, *force)
	} else {
		written, err = config.InitConfig(*force)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Configuration written to %s\n", written)
	return nil
}
