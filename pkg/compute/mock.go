package compute

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// MockInstance is an instance held by MockEC2
type MockInstance struct {
	ID           string
	State        string
	Tags         map[string]string
	ImageID      string
	InstanceType string
	Profile      string
	UserData     string
}

// MockEC2 implements EC2API in memory for testing.
// Newly run instances start in "running"; started instances go to "pending".
type MockEC2 struct {
	mu        sync.Mutex
	instances map[string]*MockInstance
	order     []string
	counter   int
	calls     map[string]int

	DescribeErr error
	StartErr    error
	RunErr      error
	TagErr      error
	RunEmpty    bool
	RunDelay    time.Duration
}

func NewMockEC2() *MockEC2 {
	return &MockEC2{
		instances: make(map[string]*MockInstance),
		calls:     make(map[string]int),
	}
}

// AddInstance seeds an instance tagged with name in the given state and returns its id
func (m *MockEC2) AddInstance(name, state string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst := m.newInstanceLocked()
	inst.State = state
	if name != "" {
		inst.Tags[NameTagKey] = name
	}
	return inst.ID
}

// SetState moves an instance to a new state
func (m *MockEC2) SetState(id, state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inst, ok := m.instances[id]; ok {
		inst.State = state
	}
}

// Instance returns a copy of the instance with the given id
func (m *MockEC2) Instance(id string) (MockInstance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[id]
	if !ok {
		return MockInstance{}, false
	}
	return *inst, true
}

// Tagged returns the ids of instances whose Name tag equals name, in creation order
func (m *MockEC2) Tagged(name string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, id := range m.order {
		if m.instances[id].Tags[NameTagKey] == name {
			ids = append(ids, id)
		}
	}
	return ids
}

// Calls returns how many times op was invoked
func (m *MockEC2) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// ResetCalls clears the call counters
func (m *MockEC2) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make(map[string]int)
}

func (m *MockEC2) newInstanceLocked() *MockInstance {
	m.counter++
	inst := &MockInstance{
		ID:   fmt.Sprintf("i-%017x", m.counter),
		Tags: make(map[string]string),
	}
	m.instances[inst.ID] = inst
	m.order = append(m.order, inst.ID)
	return inst
}

func (m *MockEC2) describe(inst *MockInstance) ec2types.Instance {
	var tags []ec2types.Tag
	for k, v := range inst.Tags {
		tags = append(tags, ec2types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return ec2types.Instance{
		InstanceId: aws.String(inst.ID),
		ImageId:    aws.String(inst.ImageID),
		State:      &ec2types.InstanceState{Name: ec2types.InstanceStateName(inst.State)},
		Tags:       tags,
	}
}

func (m *MockEC2) DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["DescribeInstances"]++

	if m.DescribeErr != nil {
		return nil, m.DescribeErr
	}

	var found []ec2types.Instance
	if len(params.InstanceIds) > 0 {
		for _, id := range params.InstanceIds {
			inst, ok := m.instances[id]
			if !ok {
				return nil, fmt.Errorf("InvalidInstanceID.NotFound: the instance ID '%s' does not exist", id)
			}
			found = append(found, m.describe(inst))
		}
	} else {
		for _, id := range m.order {
			inst := m.instances[id]
			if matchesFilters(inst, params.Filters) {
				found = append(found, m.describe(inst))
			}
		}
	}

	out := &ec2.DescribeInstancesOutput{}
	if len(found) > 0 {
		out.Reservations = []ec2types.Reservation{{Instances: found}}
	}
	return out, nil
}

func matchesFilters(inst *MockInstance, filters []ec2types.Filter) bool {
	for _, f := range filters {
		name := aws.ToString(f.Name)
		key, ok := strings.CutPrefix(name, "tag:")
		if !ok {
			continue
		}
		value, tagged := inst.Tags[key]
		if !tagged {
			return false
		}
		matched := false
		for _, v := range f.Values {
			if v == value {
				matched = true
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func (m *MockEC2) StartInstances(ctx context.Context, params *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["StartInstances"]++

	if m.StartErr != nil {
		return nil, m.StartErr
	}
	for _, id := range params.InstanceIds {
		inst, ok := m.instances[id]
		if !ok {
			return nil, fmt.Errorf("InvalidInstanceID.NotFound: the instance ID '%s' does not exist", id)
		}
		inst.State = "pending"
	}
	return &ec2.StartInstancesOutput{}, nil
}

func (m *MockEC2) RunInstances(ctx context.Context, params *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error) {
	m.mu.Lock()
	m.calls["RunInstances"]++
	delay := m.RunDelay
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.RunErr != nil {
		return nil, m.RunErr
	}
	if m.RunEmpty {
		return &ec2.RunInstancesOutput{}, nil
	}

	inst := m.newInstanceLocked()
	inst.State = "running"
	inst.ImageID = aws.ToString(params.ImageId)
	inst.InstanceType = string(params.InstanceType)
	inst.UserData = aws.ToString(params.UserData)
	if params.IamInstanceProfile != nil {
		inst.Profile = aws.ToString(params.IamInstanceProfile.Name)
	}

	return &ec2.RunInstancesOutput{
		Instances: []ec2types.Instance{m.describe(inst)},
	}, nil
}

func (m *MockEC2) CreateTags(ctx context.Context, params *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["CreateTags"]++

	if m.TagErr != nil {
		return nil, m.TagErr
	}
	for _, id := range params.Resources {
		inst, ok := m.instances[id]
		if !ok {
			return nil, fmt.Errorf("InvalidInstanceID.NotFound: the instance ID '%s' does not exist", id)
		}
		for _, tag := range params.Tags {
			inst.Tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
		}
	}
	return &ec2.CreateTagsOutput{}, nil
}
