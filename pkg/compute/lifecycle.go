package compute

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/cuemby/colony/pkg/log"
	"github.com/cuemby/colony/pkg/types"
	"github.com/rs/zerolog"
)

// NameTagKey is the tag that binds an instance to a slot
const NameTagKey = "Name"

// EC2API is the subset of the EC2 client the lifecycle manager calls.
// *ec2.Client satisfies it.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	StartInstances(ctx context.Context, params *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error)
	RunInstances(ctx context.Context, params *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	CreateTags(ctx context.Context, params *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
}

// Config holds the fixed launch parameters for worker instances
type Config struct {
	ImageID         string
	InstanceType    string
	InstanceProfile string
	Bootstrap       BootstrapConfig
}

// Outcome is what a single Ensure call did
type Outcome string

const (
	OutcomeNoop        Outcome = "noop"
	OutcomeStarted     Outcome = "started"
	OutcomeProvisioned Outcome = "provisioned"
	OutcomeReplaced    Outcome = "replaced"
	OutcomeUnsupported Outcome = "unsupported"
	OutcomeFailed      Outcome = "failed"
)

// Result reports the instance bound to a slot after Ensure
type Result struct {
	Outcome    Outcome
	InstanceID string
	State      types.InstanceState // State observed before any action
}

// Manager keeps exactly one instance alive per slot name.
// It holds no state of its own; every call re-queries the provider.
// Calls for the same slot must be serialized by the caller.
type Manager struct {
	client EC2API
	cfg    Config
	logger zerolog.Logger
}

// NewManager creates a lifecycle manager on top of an EC2 client
func NewManager(client EC2API, cfg Config) *Manager {
	return &Manager{
		client: client,
		cfg:    cfg,
		logger: log.WithComponent("compute"),
	}
}

// Ensure reconciles slot index to a single usable instance.
//
// Absent or terminated instances are replaced, stopped ones are started
// without waiting, running ones are left alone. Transitional and unknown
// states are reported as OutcomeUnsupported with no action. A state the
// provider reports outside the known set fails with ErrUnsupportedState.
//
// On a provisioning failure after the instance was created (tagging), the
// new instance id is still returned alongside the error.
func (m *Manager) Ensure(ctx context.Context, index int) (Result, error) {
	name := types.SlotName(index)
	logger := m.logger.With().Int("slot", index).Str("slot_name", name).Logger()

	instanceID, err := m.FindInstance(ctx, index)
	if err != nil {
		return Result{Outcome: OutcomeFailed, State: types.InstanceStateUnknown}, err
	}

	if instanceID == "" {
		logger.Info().Msg("No instance found, provisioning one")
		newID, err := m.Provision(ctx, index)
		if err != nil {
			return Result{Outcome: OutcomeFailed, InstanceID: newID, State: types.InstanceStateAbsent}, err
		}
		logger.Info().Str("instance_id", newID).Msg("Instance provisioned")
		return Result{Outcome: OutcomeProvisioned, InstanceID: newID, State: types.InstanceStateAbsent}, nil
	}

	logger = logger.With().Str("instance_id", instanceID).Logger()

	state, err := m.InstanceState(ctx, instanceID)
	if err != nil {
		return Result{Outcome: OutcomeFailed, InstanceID: instanceID, State: state}, err
	}

	switch state {
	case types.InstanceStateRunning:
		logger.Debug().Msg("Instance already running")
		return Result{Outcome: OutcomeNoop, InstanceID: instanceID, State: state}, nil

	case types.InstanceStateStopped:
		logger.Info().Msg("Instance stopped, starting it")
		if err := m.Start(ctx, instanceID); err != nil {
			return Result{Outcome: OutcomeFailed, InstanceID: instanceID, State: state}, err
		}
		return Result{Outcome: OutcomeStarted, InstanceID: instanceID, State: state}, nil

	case types.InstanceStateTerminated:
		logger.Info().Msg("Instance terminated, provisioning a replacement")
		newID, err := m.Provision(ctx, index)
		if err != nil {
			if newID == "" {
				newID = instanceID
			}
			return Result{Outcome: OutcomeFailed, InstanceID: newID, State: state}, err
		}
		logger.Info().Str("replacement_id", newID).Msg("Instance replaced")
		return Result{Outcome: OutcomeReplaced, InstanceID: newID, State: state}, nil

	case types.InstanceStateUnrecognized:
		logger.Error().Msg("Instance reported a state outside the known set")
		return Result{Outcome: OutcomeFailed, InstanceID: instanceID, State: state},
			types.Errorf(types.ErrUnsupportedState, "ensure "+name, "instance %s in unrecognized state", instanceID)

	default:
		logger.Warn().Str("state", string(state)).Msg("Instance in unsupported state, leaving it alone")
		return Result{Outcome: OutcomeUnsupported, InstanceID: instanceID, State: state}, nil
	}
}

// FindInstance returns the id of the instance tagged with the slot's name,
// or "" when there is none. When several match, the one most likely to be
// the live worker wins so lingering terminated instances are not picked
// over their replacement.
func (m *Manager) FindInstance(ctx context.Context, index int) (string, error) {
	name := types.SlotName(index)
	input := &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{
				Name:   aws.String("tag:" + NameTagKey),
				Values: []string{name},
			},
		},
	}

	var (
		bestID   string
		bestRank = -1
	)
	paginator := ec2.NewDescribeInstancesPaginator(m.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return "", types.NewError(types.ErrQuery, "describe "+name, err)
		}
		for _, reservation := range page.Reservations {
			for _, inst := range reservation.Instances {
				rank := stateRank(stateOf(inst))
				if rank > bestRank {
					bestID = aws.ToString(inst.InstanceId)
					bestRank = rank
				}
			}
		}
	}
	return bestID, nil
}

// InstanceState queries the current lifecycle state of an instance.
// On failure the state is reported as unknown.
func (m *Manager) InstanceState(ctx context.Context, instanceID string) (types.InstanceState, error) {
	out, err := m.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return types.InstanceStateUnknown, types.NewError(types.ErrQuery, "describe "+instanceID, err)
	}
	for _, reservation := range out.Reservations {
		for _, inst := range reservation.Instances {
			return stateOf(inst), nil
		}
	}
	return types.InstanceStateUnknown, nil
}

// Start issues a start command and returns without waiting for running
func (m *Manager) Start(ctx context.Context, instanceID string) error {
	_, err := m.client.StartInstances(ctx, &ec2.StartInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return types.NewError(types.ErrProvisioning, "start "+instanceID, err)
	}
	logger := log.WithInstanceID(instanceID)
	logger.Info().Msg("Instance start requested")
	return nil
}

// Provision launches one new instance with the bootstrap payload and tags it
// with the slot's name. If tagging fails the new id is returned with the error.
func (m *Manager) Provision(ctx context.Context, index int) (string, error) {
	name := types.SlotName(index)
	op := "provision " + name

	input := &ec2.RunInstancesInput{
		ImageId:      aws.String(m.cfg.ImageID),
		InstanceType: ec2types.InstanceType(m.cfg.InstanceType),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		UserData:     aws.String(m.cfg.Bootstrap.UserData()),
	}
	if m.cfg.InstanceProfile != "" {
		input.IamInstanceProfile = &ec2types.IamInstanceProfileSpecification{
			Name: aws.String(m.cfg.InstanceProfile),
		}
	}

	out, err := m.client.RunInstances(ctx, input)
	if err != nil {
		return "", types.NewError(types.ErrProvisioning, op, err)
	}
	if len(out.Instances) == 0 || aws.ToString(out.Instances[0].InstanceId) == "" {
		return "", types.NewError(types.ErrProvisioning, op, errors.New("provider returned no instance"))
	}
	instanceID := aws.ToString(out.Instances[0].InstanceId)

	_, err = m.client.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{instanceID},
		Tags: []ec2types.Tag{
			{Key: aws.String(NameTagKey), Value: aws.String(name)},
		},
	})
	if err != nil {
		return instanceID, types.NewError(types.ErrProvisioning, op,
			fmt.Errorf("failed to tag instance %s: %w", instanceID, err))
	}

	m.logger.Debug().Str("slot_name", name).Str("instance_id", instanceID).Msg("Instance created and tagged")
	return instanceID, nil
}

func stateOf(inst ec2types.Instance) types.InstanceState {
	if inst.State == nil {
		return types.InstanceStateUnknown
	}
	return types.ParseInstanceState(string(inst.State.Name))
}

// stateRank orders candidates sharing one slot name, highest first
func stateRank(state types.InstanceState) int {
	switch state {
	case types.InstanceStateRunning:
		return 6
	case types.InstanceStatePending:
		return 5
	case types.InstanceStateStopping:
		return 4
	case types.InstanceStateStopped:
		return 3
	case types.InstanceStateShuttingDown:
		return 1
	case types.InstanceStateTerminated:
		return 0
	default:
		return 2
	}
}
