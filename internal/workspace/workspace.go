// Package workspace loads project-local commands from a YAML file found in
// the working directory or one of its parents.
package workspace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/runger/shellmark/internal/storage"
)

// DefaultFileName is the workspace file looked up when none is configured.
const DefaultFileName = ".shellmark.yaml"

// File is the content of a workspace file.
type File struct {
	Commands []Entry `yaml:"commands"`
}

// Entry is one command of a workspace file.
type Entry struct {
	Cmd         string   `yaml:"cmd"`
	Alias       string   `yaml:"alias,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
}

// Loader is the part of the store that holds workspace commands.
type Loader interface {
	LoadWorkspace(ctx context.Context, cmds []storage.Command) (int, error)
	ClearWorkspace(ctx context.Context) error
}

// Find walks up from dir looking for a file named name. It returns "" when
// no directory up to the filesystem root has one.
func Find(dir, name string) (string, error) {
	if name == "" {
		name = DefaultFileName
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	for {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		switch {
		case err == nil && !info.IsDir():
			return path, nil
		case err != nil && !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("failed to stat %s: %w", path, err)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Parse decodes a workspace file. Unknown fields are rejected and every entry
// needs a cmd.
func Parse(data []byte) (*File, error) {
	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	for i, e := range f.Commands {
		if strings.TrimSpace(e.Cmd) == "" {
			return nil, fmt.Errorf("commands[%d]: cmd is required", i)
		}
	}
	return &f, nil
}

// ReadFile reads and parses the workspace file at path.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// StorageCommands converts the entries into workspace commands.
func (f *File) StorageCommands() []storage.Command {
	cmds := make([]storage.Command, 0, len(f.Commands))
	for _, e := range f.Commands {
		c := storage.Command{
			Category: storage.CategoryWorkspace,
			Source:   storage.SourceWorkspace,
			Cmd:      e.Cmd,
			Tags:     e.Tags,
		}
		if e.Alias != "" {
			alias := e.Alias
			c.Alias = &alias
		}
		if e.Description != "" {
			desc := e.Description
			c.Description = &desc
		}
		cmds = append(cmds, c)
	}
	return cmds
}

// Load finds the workspace file for dir and loads its commands into l,
// replacing any previous workspace. When there is no file the workspace is
// cleared. It returns the file used and the number of commands loaded.
func Load(ctx context.Context, l Loader, dir, name string) (string, int, error) {
	path, err := Find(dir, name)
	if err != nil {
		return "", 0, err
	}
	if path == "" {
		return "", 0, l.ClearWorkspace(ctx)
	}

	f, err := ReadFile(path)
	if err != nil {
		return "", 0, err
	}
	n, err := l.LoadWorkspace(ctx, f.StorageCommands())
	if err != nil {
		return "", 0, fmt.Errorf("failed to load workspace %s: %w", path, err)
	}
	return path, n, nil
}
