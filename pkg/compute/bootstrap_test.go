package compute

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrapScriptDefaults(t *testing.T) {
	cfg := BootstrapConfig{Bucket: "fleet-bucket", WorkerKey: "WorkerProgram.jar"}

	want := "#!/bin/bash\n" +
		"yum update -y\n" +
		"mkdir -p /home/ec2-user/app\n" +
		"mkdir -p /home/ec2-user/app/files\n" +
		"cd /home/ec2-user/app\n" +
		"aws s3 cp s3://fleet-bucket/WorkerProgram.jar ./\n" +
		"java -jar WorkerProgram.jar > app.log 2>&1 &\n"

	assert.Equal(t, want, cfg.Script())
}

func TestBootstrapScriptDeterministic(t *testing.T) {
	cfg := BootstrapConfig{Bucket: "b", WorkerKey: "w.jar", WorkDir: "/opt/worker", LogFile: "worker.log"}
	assert.Equal(t, cfg.Script(), cfg.Script())
	assert.Contains(t, cfg.Script(), "mkdir -p /opt/worker/files\n")
	assert.Contains(t, cfg.Script(), "java -jar w.jar > worker.log 2>&1 &\n")
}

func TestBootstrapUserData(t *testing.T) {
	cfg := BootstrapConfig{Bucket: "b", WorkerKey: "w.jar"}

	decoded, err := base64.StdEncoding.DecodeString(cfg.UserData())
	require.NoError(t, err)
	assert.Equal(t, cfg.Script(), string(decoded))
}
