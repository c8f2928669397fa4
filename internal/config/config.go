// Copyright 2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config decodes the runtime's YAML configuration file: stack and
// arena sizing, and how to reach a package file that isn't already on local
// disk.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level shape of swampd.yaml.
type Config struct {
	// StackSize is the byte size of each run's stack arena.
	StackSize int `yaml:"stackSize"`
	// DynamicCapacity is the initial byte size of each run's dynamic arena;
	// it grows by doubling as needed, so this is a hint, not a ceiling.
	DynamicCapacity int `yaml:"dynamicCapacity"`
	// SSH describes how to reach a remote package file, if the package path
	// given to swampd uses the ssh:// scheme. Left zero-valued for local-disk
	// package files.
	SSH SSHConfig `yaml:"ssh"`
}

// SSHConfig names the user to connect as when fetching a package staged on
// a remote build host whose URL doesn't already carry a username.
// Authentication itself goes through the local ssh-agent.
type SSHConfig struct {
	User string `yaml:"user"`
}

// Default returns the configuration swampd runs with when no config file is
// given: a stack generous enough for moderate recursion and a dynamic arena
// that starts small and grows on demand.
func Default() Config {
	return Config{
		StackSize:       1 << 20,
		DynamicCapacity: 1 << 16,
	}
}

// Load reads and decodes a YAML config file at path, filling in Default's
// values for anything the file leaves unset.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}
