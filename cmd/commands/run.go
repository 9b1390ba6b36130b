/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/numaproj/numadedup"
	"github.com/numaproj/numadedup/pkg/config"
	"github.com/numaproj/numadedup/pkg/processor"
	"github.com/numaproj/numadedup/pkg/shared/logging"
)

func NewRunCommand() *cobra.Command {
	var configPath string

	command := &cobra.Command{
		Use:   "run",
		Short: "Run a dedup job",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.NewLogger()
			watcher, err := config.Watch(configPath, func(c *config.Config) {
				// only the log level is applied without a restart
				if err := logging.SetLevel(c.Log.Level); err != nil {
					log.Warnw("Ignoring invalid log level", zap.String("level", c.Log.Level), zap.Error(err))
					return
				}
				log.Infow("Reloaded configuration", zap.String("logLevel", logging.Level()))
			}, func(err error) {
				log.Errorw("Keeping the previous configuration", zap.Error(err))
			})
			if err != nil {
				return err
			}
			conf := watcher.Get()
			if err := logging.SetLevel(conf.Log.Level); err != nil {
				return err
			}
			log.Infow("Starting dedup job", "version", numadedup.GetVersion().String(), "config", configPath)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			p := &processor.DedupProcessor{
				Config: conf,
				Stdin:  cmd.InOrStdin(),
				Stdout: cmd.OutOrStdout(),
			}
			return p.Start(logging.WithLogger(ctx, log))
		},
	}
	command.Flags().StringVarP(&configPath, "config", "c", "numadedup.yaml", "Path of the job configuration file")
	return command
}
