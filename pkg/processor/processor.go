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

// Package processor assembles a dedup job from its configuration: the source,
// the partitioned operators with their state, the sink, and the checkpoints.
package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/numaproj/numadedup"
	"github.com/numaproj/numadedup/pkg/changelog"
	"github.com/numaproj/numadedup/pkg/config"
	"github.com/numaproj/numadedup/pkg/dedup"
	"github.com/numaproj/numadedup/pkg/dedup/checkpoint"
	"github.com/numaproj/numadedup/pkg/dedup/runner"
	"github.com/numaproj/numadedup/pkg/dedup/state"
	"github.com/numaproj/numadedup/pkg/metrics"
	"github.com/numaproj/numadedup/pkg/shared/expr"
	"github.com/numaproj/numadedup/pkg/shared/logging"
	"github.com/numaproj/numadedup/pkg/sinks"
	"github.com/numaproj/numadedup/pkg/sinks/blackhole"
	kafkasink "github.com/numaproj/numadedup/pkg/sinks/kafka"
	logsink "github.com/numaproj/numadedup/pkg/sinks/logger"
	"github.com/numaproj/numadedup/pkg/sources"
	httpsource "github.com/numaproj/numadedup/pkg/sources/http"
	"github.com/numaproj/numadedup/pkg/sources/jsonl"
	kafkasource "github.com/numaproj/numadedup/pkg/sources/kafka"
)

const closeTimeout = 30 * time.Second

// DedupProcessor runs one dedup job until its input ends or ctx is done.
type DedupProcessor struct {
	Config *config.Config
	// Stdin is read by a jsonl source with path "-".
	Stdin io.Reader
	// Stdout is written by the log sink.
	Stdout io.Writer
}

func (p *DedupProcessor) Start(ctx context.Context) error {
	conf := p.Config
	log := logging.FromContext(ctx).With("job", conf.Name)
	ctx = logging.WithLogger(ctx, log)

	schema, err := conf.BuildSchema()
	if err != nil {
		return err
	}
	keys, err := changelog.NewKeySelector(schema, conf.Keys...)
	if err != nil {
		return err
	}
	codec := state.NewCodec(schema)

	sinker, err := p.buildSink(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create sink, %w", err)
	}
	defer func() {
		if err := sinker.Close(); err != nil {
			log.Errorw("Failed to close sink", zap.Error(err))
		}
	}()

	r, err := runner.NewRunner(ctx, keys, conf.Parallelism, func(ctx context.Context, partition int) (*dedup.Operator, error) {
		store, err := newStateStore(ctx, conf, codec, partition)
		if err != nil {
			return nil, err
		}
		opts, err := conf.ToOperatorOptions(partition)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		op, err := dedup.NewOperator(ctx, schema, conf.Keys, store, sinker, opts...)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		return op, nil
	})
	if err != nil {
		return err
	}

	var manager *checkpoint.Manager
	if conf.CheckpointEnabled() {
		kv, err := NewKVStore(ctx, conf, conf.Checkpoint.Backend, conf.Checkpoint.Bucket)
		if err != nil {
			_ = r.Close(ctx, false)
			return fmt.Errorf("failed to create checkpoint store, %w", err)
		}
		defer kv.Close()
		manager = checkpoint.NewManager(ctx, conf.Name, kv, codec)
		if conf.RestoreEnabled() {
			if err := restore(ctx, manager, r); err != nil {
				_ = r.Close(ctx, false)
				return err
			}
		}
	}

	if !conf.Metrics.Disable {
		shutdown, err := p.startMetricsServer(ctx, manager)
		if err != nil {
			_ = r.Close(ctx, false)
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
	}

	src, err := p.buildSource(ctx, schema)
	if err != nil {
		_ = r.Close(ctx, false)
		return fmt.Errorf("failed to create source, %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Errorw("Failed to close source", zap.Error(err))
		}
	}()

	runErr := p.run(ctx, src, r, manager, schema)

	cctx, cancel := context.WithTimeout(logging.WithLogger(context.Background(), log), closeTimeout)
	defer cancel()
	if err := r.Close(cctx, true); err != nil {
		runErr = multierr.Append(runErr, fmt.Errorf("failed to close operators, %w", err))
	}
	if runErr == nil {
		log.Info("Dedup job completed")
	}
	return runErr
}

// run moves the source output through the runner, taking scheduled checkpoints
// and a final one when a bounded input ends. Checkpoint barriers travel through
// the same channel as the rows, so each checkpoint covers exactly the rows fed
// before it.
func (p *DedupProcessor) run(ctx context.Context, src sources.Source, r *runner.Runner, manager *checkpoint.Manager, schema *changelog.Schema) error {
	log := logging.FromContext(ctx)
	var filter *expr.Filter
	if p.Config.Source.Filter != "" && p.Config.Source.Type != "jsonl" {
		var err error
		if filter, err = expr.NewFilter(p.Config.Source.Filter, schema); err != nil {
			return err
		}
	}
	g, gctx := errgroup.WithContext(ctx)

	barriers := make(chan *dedup.Barrier)
	fed := make(chan struct{})
	// held from cutting a checkpoint until it is saved, so commits follow the stream order
	var checkpointLock sync.Mutex
	if manager != nil {
		c := cron.New(cron.WithLogger(cronLogger{log: log}))
		if _, err := c.AddFunc(p.Config.Checkpoint.Schedule, func() {
			checkpointLock.Lock()
			defer checkpointLock.Unlock()
			err := scheduledCheckpoint(gctx, r, manager, barriers, fed)
			if err != nil && !errors.Is(err, runner.ErrNotRunning) && gctx.Err() == nil {
				log.Errorw("Failed to take checkpoint", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("invalid checkpoint schedule, %w", err)
		}
		c.Start()
		defer func() { <-c.Stop().Done() }()
	}

	raw := make(chan dedup.Element, 256)
	in := make(chan dedup.Element, 256)
	ended := make(chan struct{})
	g.Go(func() error {
		defer close(raw)
		log.Infow("Start reading", zap.String("source", src.GetName()), zap.String("type", p.Config.Source.Type))
		if err := src.Start(gctx, raw); err != nil {
			return err
		}
		close(ended)
		return nil
	})
	g.Go(func() error {
		defer close(in)
		err := feed(gctx, filter, raw, barriers, in)
		close(fed)
		if err != nil {
			return err
		}
		select {
		case <-ended:
		default:
			return nil
		}
		if manager == nil {
			return nil
		}
		// the input is bounded, commit what it produced before the operators stop
		checkpointLock.Lock()
		defer checkpointLock.Unlock()
		records, err := r.Checkpoint(gctx, in)
		if err != nil {
			return err
		}
		_, err = manager.Save(gctx, r.Partitions(), records)
		return err
	})
	g.Go(func() error {
		return r.Run(gctx, in)
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		log.Info("Dedup job stopped")
		return nil
	}
	return err
}

// feed forwards in to out until in is closed, dropping the rows filter rejects.
// Barriers received meanwhile are placed between the rows at the point they
// arrive.
func feed(ctx context.Context, filter *expr.Filter, in <-chan dedup.Element, barriers <-chan *dedup.Barrier, out chan<- dedup.Element) error {
	log := logging.FromContext(ctx)
	for {
		var e dedup.Element
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b := <-barriers:
			e = dedup.BarrierElement(b)
		case next, ok := <-in:
			if !ok {
				return nil
			}
			e = next
			if filter != nil && !e.IsWatermark() && !e.IsBarrier() {
				match, err := filter.Match(e.Row)
				if err != nil {
					log.Warnw("Dropping row the filter can not evaluate", zap.Error(err))
					continue
				}
				if !match {
					continue
				}
			}
		}
		select {
		case out <- e:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// scheduledCheckpoint asks feed to cut a checkpoint and saves it. It gives up
// with ErrNotRunning once feed has stopped.
func scheduledCheckpoint(ctx context.Context, r *runner.Runner, manager *checkpoint.Manager, barriers chan<- *dedup.Barrier, fed <-chan struct{}) error {
	b := dedup.NewBarrier()
	select {
	case barriers <- b:
	case <-fed:
		return runner.ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	records, err := r.Await(ctx, b)
	if err != nil {
		return err
	}
	_, err = manager.Save(ctx, r.Partitions(), records)
	return err
}

func restore(ctx context.Context, manager *checkpoint.Manager, r *runner.Runner) error {
	log := logging.FromContext(ctx)
	manifest, records, err := manager.Load(ctx)
	if errors.Is(err, checkpoint.ErrNoCheckpoint) {
		log.Info("No committed checkpoint, starting with empty state")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load checkpoint, %w", err)
	}
	if err := r.Restore(ctx, records); err != nil {
		return err
	}
	log.Infow("Restored checkpoint", zap.String("id", manifest.ID), zap.Int("partitions", manifest.Partitions), zap.Int("records", len(records)))
	return nil
}

func (p *DedupProcessor) buildSink(ctx context.Context, schema *changelog.Schema) (sinks.Sinker, error) {
	conf := p.Config
	switch conf.Sink.Type {
	case "log":
		var opts []logsink.Option
		if p.Stdout != nil {
			opts = append(opts, logsink.WithWriter(p.Stdout))
		}
		return logsink.NewToLog(ctx, conf.Name, schema, opts...)
	case "kafka":
		k := conf.Sink.Kafka
		return kafkasink.NewToKafka(ctx, conf.Name, schema, kafkasink.Config{
			Brokers:       k.Brokers,
			Topic:         k.Topic,
			SaramaConfig:  k.SaramaConfig,
			SASLMechanism: k.SASL.Mechanism,
			SASLUser:      k.SASL.User,
			SASLPassword:  k.SASL.Password,
		})
	case "blackhole":
		return blackhole.NewBlackhole(ctx, conf.Name), nil
	default:
		return nil, fmt.Errorf("unsupported sink type %q", conf.Sink.Type)
	}
}

func (p *DedupProcessor) buildSource(ctx context.Context, schema *changelog.Schema) (sources.Source, error) {
	conf := p.Config
	loc, err := time.LoadLocation(conf.Source.Timezone)
	if err != nil {
		return nil, err
	}
	switch conf.Source.Type {
	case "jsonl":
		opts := []jsonl.Option{jsonl.WithLocation(loc)}
		if conf.Source.Filter != "" {
			filter, err := expr.NewFilter(conf.Source.Filter, schema)
			if err != nil {
				return nil, err
			}
			opts = append(opts, jsonl.WithFilter(filter))
		}
		var in io.Reader
		var closer io.Closer
		if conf.Source.Path == "-" {
			in = p.Stdin
			if in == nil {
				in = os.Stdin
			}
		} else {
			f, err := os.Open(conf.Source.Path)
			if err != nil {
				return nil, err
			}
			in, closer = f, f
		}
		reader, err := jsonl.NewReader(ctx, conf.Name, schema, in, opts...)
		if err != nil {
			if closer != nil {
				_ = closer.Close()
			}
			return nil, err
		}
		if closer != nil {
			return &fileSource{Reader: reader, file: closer}, nil
		}
		return reader, nil
	case "http":
		h := conf.Source.HTTP
		return httpsource.NewHttpSource(ctx, conf.Name, jsonl.NewDecoder(schema, loc),
			httpsource.WithPort(h.Port), httpsource.WithAuthToken(h.AuthToken), httpsource.WithTLS(h.TLS))
	case "kafka":
		k := conf.Source.Kafka
		return kafkasource.NewKafkaSource(ctx, conf.Name, jsonl.NewDecoder(schema, loc), kafkasource.Config{
			Brokers:       k.Brokers,
			Topic:         k.Topic,
			ConsumerGroup: k.ConsumerGroup,
			SaramaConfig:  k.SaramaConfig,
			SASLMechanism: k.SASL.Mechanism,
			SASLUser:      k.SASL.User,
			SASLPassword:  k.SASL.Password,
		})
	default:
		return nil, fmt.Errorf("unsupported source type %q", conf.Source.Type)
	}
}

// fileSource closes the file a jsonl reader reads.
type fileSource struct {
	*jsonl.Reader
	file io.Closer
}

func (f *fileSource) Close() error {
	return multierr.Append(f.Reader.Close(), f.file.Close())
}

func (p *DedupProcessor) startMetricsServer(ctx context.Context, manager *checkpoint.Manager) (func(context.Context) error, error) {
	v := numadedup.GetVersion()
	metrics.BuildInfo.WithLabelValues(v.Version, v.Platform).Set(1)
	var checkers []metrics.HealthChecker
	if manager != nil {
		checkers = append(checkers, metrics.HealthCheckerFunc(func(ctx context.Context) error {
			if _, err := manager.Latest(ctx); err != nil && !errors.Is(err, checkpoint.ErrNoCheckpoint) {
				return err
			}
			return nil
		}))
	}
	opts := metrics.NewMetricsOptions(ctx, p.Config.Metrics.Port, checkers)
	if p.Config.Metrics.Pprof {
		opts = append(opts, metrics.WithPprof(true))
	}
	return metrics.NewMetricsServer(opts...).Start(ctx)
}

// cronLogger routes the scheduler logs to zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Errorw(msg, append(keysAndValues, zap.Error(err))...)
}
