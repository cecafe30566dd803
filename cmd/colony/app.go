package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/cuemby/colony/pkg/compute"
	"github.com/cuemby/colony/pkg/config"
	"github.com/cuemby/colony/pkg/events"
	"github.com/cuemby/colony/pkg/fleet"
	"github.com/cuemby/colony/pkg/metrics"
	"github.com/cuemby/colony/pkg/objectstore"
	"github.com/cuemby/colony/pkg/queue"
	"github.com/cuemby/colony/pkg/storage"
)

// app is everything a command needs, built once from the loaded config
type app struct {
	ctrl   *fleet.Controller
	queues *queue.Coordinator
	broker *events.Broker
}

func loadAWS(ctx context.Context, region string) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config for %s: %w", region, err)
	}
	return awsCfg, nil
}

// appOptions selects the optional parts of an app. Only fleet commands need
// the slot store, and only one process at a time can hold it.
type appOptions struct {
	slots bool
}

// clients are the AWS service clients an app is assembled from
type clients struct {
	ec2 compute.EC2API
	s3  objectstore.S3API
	sqs queue.SQSAPI
}

// newApp is swapped out in tests to assemble the app from in-memory clients
var newApp = buildApp

func buildApp(ctx context.Context, cfg config.Config, opts appOptions) (*app, error) {
	computeAWS, err := loadAWS(ctx, cfg.AWS.ComputeRegion)
	if err != nil {
		return nil, err
	}
	storageAWS, err := loadAWS(ctx, cfg.AWS.StorageRegion)
	if err != nil {
		return nil, err
	}

	endpoint := cfg.AWS.Endpoint
	c := clients{
		ec2: ec2.NewFromConfig(computeAWS, func(o *ec2.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		}),
		s3: s3.NewFromConfig(storageAWS, func(o *s3.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
				o.UsePathStyle = true
			}
		}),
		sqs: sqs.NewFromConfig(storageAWS, func(o *sqs.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		}),
	}
	return assembleApp(cfg, c, opts)
}

func assembleApp(cfg config.Config, c clients, opts appOptions) (*app, error) {
	topology, err := cfg.Topology()
	if err != nil {
		return nil, err
	}
	coord, err := queue.NewCoordinator(c.sqs, queue.Config{
		Topology:          topology,
		Wait:              time.Duration(cfg.Queues.WaitSeconds) * time.Second,
		VisibilityTimeout: time.Duration(cfg.Queues.VisibilityTimeout) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	var store storage.Store
	if opts.slots {
		boltStore, err := storage.NewBoltStore(cfg.Storage.DataDir)
		metrics.ReportComponent(metrics.ComponentStorage, err)
		if err != nil {
			return nil, err
		}
		store = boltStore
	}

	manager := compute.NewManager(c.ec2, compute.Config{
		ImageID:         cfg.Fleet.ImageID,
		InstanceType:    cfg.Fleet.InstanceType,
		InstanceProfile: cfg.Fleet.InstanceProfile,
		Bootstrap: compute.BootstrapConfig{
			Bucket:        cfg.Storage.Bucket,
			WorkerKey:     cfg.Fleet.WorkerKey,
			WorkDir:       cfg.Fleet.WorkDir,
			LaunchCommand: cfg.Fleet.LaunchCommand,
			LogFile:       cfg.Fleet.LogFile,
		},
	})

	broker := events.NewBroker()
	ctrl, err := fleet.NewController(fleet.Config{
		Size:      cfg.Fleet.Size,
		WorkerKey: cfg.Fleet.WorkerKey,
		FilesDir:  cfg.Storage.FilesDir,
	}, fleet.Deps{
		Compute: manager,
		Queues:  coord,
		Objects: objectstore.NewStore(c.s3, cfg.Storage.Bucket),
		Store:   store,
		Events:  broker,
	})
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}

	return &app{ctrl: ctrl, queues: coord, broker: broker}, nil
}

func (a *app) Close() error {
	a.broker.Stop()
	return a.ctrl.Close()
}
