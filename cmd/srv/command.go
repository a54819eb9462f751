package main

import "github.com/urfave/cli/v2"

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "Path of the TOML configuration file",
		Value:   "config.toml",
		EnvVars: []string{"CONFIG_PATH"},
	}

	signerKeyFlag = &cli.StringFlag{
		Name:    "signer-key",
		Usage:   "Hex private key used to sign write transactions; omit for a read-only node",
		EnvVars: []string{"SIGNER_KEY"},
	}
)

func (s *srv) loadApp() {
	app := cli.NewApp()
	app.Action = cli.ShowAppHelp
	app.Name = "Tribes"
	app.Usage = ""
	app.Commands = []*cli.Command{
		{
			Action:      server.startNode,
			Name:        "serve",
			Usage:       "Start the cache node",
			Flags:       []cli.Flag{configFlag, signerKeyFlag},
			Category:    "Node",
			Description: `Runs the full cache layer: posts API, background sync and the task queue.`,
		},
		{
			Action:      server.startApi,
			Name:        "api",
			Usage:       "Start the posts API only",
			Flags:       []cli.Flag{configFlag},
			Category:    "Node",
			Description: `Serves cached posts over HTTP without background synchronization.`,
		},
	}

	s.app = app
}
