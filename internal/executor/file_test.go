package executor_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/lambda-feedback/agenthost/internal/command"
	"github.com/lambda-feedback/agenthost/internal/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func cmd(tag, action, options string) command.Command {
	c := command.Command{Tag: tag, Cmd: action}
	if options != "" {
		c.Options = json.RawMessage(options)
	}
	return c
}

func TestFile_Create(t *testing.T) {
	root := t.TempDir()
	f := executor.NewFile(root, zap.NewNop())

	result, err := f.Execute(context.Background(), cmd("file", "create", `{"path":"a/b/c.txt","content":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, "success", result)

	data, err := os.ReadFile(filepath.Join(root, "a", "b", "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestFile_Create_WithoutContent(t *testing.T) {
	root := t.TempDir()
	f := executor.NewFile(root, zap.NewNop())

	_, err := f.Execute(context.Background(), cmd("file", "create", `{"path":"empty.txt"}`))
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(root, "empty.txt"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestFile_Create_FailsIfExists(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "existing.txt")
	require.NoError(t, os.WriteFile(path, []byte("keep"), 0o644))

	f := executor.NewFile("", zap.NewNop())

	_, err := f.Execute(context.Background(), cmd("file", "create", `{"path":"`+path+`","content":"overwrite"}`))
	assert.ErrorIs(t, err, executor.ErrFileExists)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
}

func TestFile_Create_RequiresPath(t *testing.T) {
	f := executor.NewFile(t.TempDir(), zap.NewNop())

	_, err := f.Execute(context.Background(), cmd("file", "create", `{}`))
	assert.ErrorIs(t, err, command.ErrInvalidCommand)
}

func TestFile_Read(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "in.txt"), []byte("content"), 0o644))

	f := executor.NewFile(root, zap.NewNop())

	result, err := f.Execute(context.Background(), cmd("file", "read", `{"path":"in.txt"}`))
	require.NoError(t, err)
	assert.Equal(t, "content", result)

	_, err = f.Execute(context.Background(), cmd("file", "read", `{"path":"missing.txt"}`))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFile_UnknownAction(t *testing.T) {
	f := executor.NewFile(t.TempDir(), zap.NewNop())

	_, err := f.Execute(context.Background(), cmd("file", "delete", `{"path":"x"}`))
	assert.ErrorIs(t, err, command.ErrUnknownCommand)
}
