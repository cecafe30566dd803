package compute

import (
	"encoding/base64"
	"fmt"
	"path"
	"strings"
)

// BootstrapConfig describes how a new instance fetches and launches the worker
type BootstrapConfig struct {
	Bucket        string
	WorkerKey     string
	WorkDir       string // Defaults to /home/ec2-user/app
	FilesDir      string // Subdirectory of WorkDir for worker-side files, defaults to "files"
	LaunchCommand string // Defaults to "java -jar"
	LogFile       string // Defaults to app.log
}

func (c BootstrapConfig) withDefaults() BootstrapConfig {
	if c.WorkDir == "" {
		c.WorkDir = "/home/ec2-user/app"
	}
	if c.FilesDir == "" {
		c.FilesDir = "files"
	}
	if c.LaunchCommand == "" {
		c.LaunchCommand = "java -jar"
	}
	if c.LogFile == "" {
		c.LogFile = "app.log"
	}
	return c
}

// Script renders the startup script. The output depends only on the config.
func (c BootstrapConfig) Script() string {
	c = c.withDefaults()

	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	b.WriteString("yum update -y\n")
	fmt.Fprintf(&b, "mkdir -p %s\n", c.WorkDir)
	fmt.Fprintf(&b, "mkdir -p %s\n", path.Join(c.WorkDir, c.FilesDir))
	fmt.Fprintf(&b, "cd %s\n", c.WorkDir)
	fmt.Fprintf(&b, "aws s3 cp s3://%s/%s ./\n", c.Bucket, c.WorkerKey)
	fmt.Fprintf(&b, "%s %s > %s 2>&1 &\n", c.LaunchCommand, c.WorkerKey, c.LogFile)
	return b.String()
}

// UserData returns the script base64-encoded for the instance startup payload
func (c BootstrapConfig) UserData() string {
	return base64.StdEncoding.EncodeToString([]byte(c.Script()))
}
