// Copyright 2021-2024 EMQ Technologies Co., Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/lf-edge/streamalign/internal/conf"
	"github.com/lf-edge/streamalign/internal/pkg/def"
)

var Version = "unknown"

func main() {
	app := cli.NewApp()
	app.Name = "aligner"
	app.Usage = "run recorded channel inputs through the checkpoint barrier handlers"
	app.Version = Version

	app.Commands = []cli.Command{
		{
			Name:    "replay",
			Aliases: []string{"r"},
			Usage:   "replay -s $scenario_file [-c $config_file] [--qos exactlyOnce]",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "config, c",
					Usage: "the location of the configuration yaml",
				},
				cli.StringFlag{
					Name:  "scenario, s",
					Usage: "the location of the scenario yaml",
				},
				cli.StringFlag{
					Name:  "qos",
					Usage: "override checkpoint.qos of the configuration: atMostOnce, atLeastOnce or exactlyOnce",
				},
			},
			Action: func(c *cli.Context) error {
				sfile := c.String("scenario")
				if sfile == "" {
					return cli.NewExitError("Required flag scenario is not set.", 1)
				}
				if err := conf.InitConf(c.String("config")); err != nil {
					return cli.NewExitError(fmt.Sprintf("Failed to load config file with error %s.", err), 1)
				}
				qos := conf.Config.Checkpoint.GetQos()
				if q := c.String("qos"); q != "" {
					parsed, err := def.ParseQos(q)
					if err != nil {
						return cli.NewExitError(err.Error(), 1)
					}
					qos = parsed
				}
				stop := serveMetrics()
				defer stop()
				if err := replayFile(os.Stdout, sfile, qos); err != nil {
					return cli.NewExitError(err.Error(), 1)
				}
				return nil
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}
}
