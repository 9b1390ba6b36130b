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
	"fmt"
	"io"
	"sort"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/numaproj/numadedup/pkg/changelog"
	"github.com/numaproj/numadedup/pkg/config"
	"github.com/numaproj/numadedup/pkg/dedup/checkpoint"
	"github.com/numaproj/numadedup/pkg/dedup/state"
	"github.com/numaproj/numadedup/pkg/processor"
	"github.com/numaproj/numadedup/pkg/shared/logging"
)

func NewCheckpointCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "checkpoint",
		Short: "Work with the checkpoints of a dedup job",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}
	command.AddCommand(NewCheckpointInspectCommand())
	return command
}

type inspectedRecord struct {
	Key        string         `json:"key"`
	Ordering   int64          `json:"ordering"`
	HasEmitted bool           `json:"hasEmitted"`
	Kind       string         `json:"kind"`
	Winner     map[string]any `json:"winner"`
}

type inspectedCheckpoint struct {
	Manifest checkpoint.Manifest `json:"manifest"`
	Records  []inspectedRecord   `json:"records,omitempty"`
}

func NewCheckpointInspectCommand() *cobra.Command {
	var (
		configPath   string
		output       string
		manifestOnly bool
	)

	command := &cobra.Command{
		Use:   "inspect",
		Short: "Print the committed checkpoint of a dedup job",
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "yaml" && output != "json" {
				return fmt.Errorf("unsupported output format %q, use yaml or json", output)
			}
			conf, err := config.Load(configPath)
			if err != nil {
				return err
			}
			switch conf.Checkpoint.Backend {
			case "none":
				return fmt.Errorf("checkpoints are disabled for job %q", conf.Name)
			case "memory":
				return fmt.Errorf("memory checkpoints do not outlive the job, use a redis or jetstream backend")
			}
			ctx := logging.WithLogger(context.Background(), logging.NewLogger())
			schema, err := conf.BuildSchema()
			if err != nil {
				return err
			}
			kv, err := processor.NewKVStore(ctx, conf, conf.Checkpoint.Backend, conf.Checkpoint.Bucket)
			if err != nil {
				return err
			}
			defer kv.Close()
			m := checkpoint.NewManager(ctx, conf.Name, kv, state.NewCodec(schema))

			var inspected inspectedCheckpoint
			if manifestOnly {
				if inspected.Manifest, err = m.Latest(ctx); err != nil {
					return err
				}
			} else {
				manifest, records, err := m.Load(ctx)
				if err != nil {
					return err
				}
				inspected.Manifest = manifest
				sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
				for _, r := range records {
					inspected.Records = append(inspected.Records, inspectRecord(schema, r))
				}
			}
			return printCheckpoint(cmd.OutOrStdout(), output, inspected)
		},
	}
	command.Flags().StringVarP(&configPath, "config", "c", "numadedup.yaml", "Path of the job configuration file")
	command.Flags().StringVarP(&output, "output", "o", "yaml", "Output format, yaml or json")
	command.Flags().BoolVar(&manifestOnly, "manifest-only", false, "Print the manifest without the records")
	return command
}

func inspectRecord(schema *changelog.Schema, r state.Record) inspectedRecord {
	winner := make(map[string]any, schema.Arity())
	for i, f := range schema.Fields {
		if i < len(r.State.Winner.Fields) {
			winner[f.Name] = r.State.Winner.Fields[i]
		}
	}
	return inspectedRecord{
		Key:        string(r.Key),
		Ordering:   int64(r.State.Ordering),
		HasEmitted: r.State.HasEmitted,
		Kind:       r.State.Winner.Kind.String(),
		Winner:     winner,
	}
}

func printCheckpoint(w io.Writer, output string, c inspectedCheckpoint) error {
	var (
		data []byte
		err  error
	)
	if output == "json" {
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
