package executor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/lambda-feedback/agenthost/internal/command"
	"go.uber.org/zap"
)

var ErrFileExists = errors.New("file already exists")

type FileCreateOptions struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type FileReadOptions struct {
	Path string `json:"path"`
}

// File creates and reads files. Relative paths are resolved against Root.
type File struct {
	root string
	log  *zap.Logger
}

var _ command.Executor = (*File)(nil)

func NewFile(root string, log *zap.Logger) *File {
	return &File{
		root: root,
		log:  log.Named("file"),
	}
}

func (f *File) Execute(ctx context.Context, cmd command.Command) (any, error) {
	switch cmd.Cmd {
	case "create":
		options, err := command.DecodeOptions[FileCreateOptions](cmd)
		if err != nil {
			return nil, err
		}

		if err := f.create(options); err != nil {
			return nil, err
		}

		return "success", nil

	case "read":
		options, err := command.DecodeOptions[FileReadOptions](cmd)
		if err != nil {
			return nil, err
		}

		return f.read(options)
	}

	return nil, command.Unknown(cmd)
}

func (f *File) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: path is required", command.ErrInvalidCommand)
	}

	if filepath.IsAbs(path) || f.root == "" {
		return filepath.Clean(path), nil
	}

	return filepath.Join(f.root, path), nil
}

// create writes a new file, creating its parent directories. An
// existing file is never overwritten.
func (f *File) create(options FileCreateOptions) error {
	path, err := f.resolve(options.Path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w: %s", ErrFileExists, path)
	} else if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	_, err = file.WriteString(options.Content)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	f.log.Debug("created file", zap.String("path", path))

	return nil
}

func (f *File) read(options FileReadOptions) (string, error) {
	path, err := f.resolve(options.Path)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}

	return string(data), nil
}
