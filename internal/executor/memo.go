package executor

import (
	"context"
	"encoding/json"

	"github.com/lambda-feedback/agenthost/internal/command"
	"github.com/lambda-feedback/agenthost/internal/store"
)

type MemoKeyOptions struct {
	Key     string          `json:"key"`
	Default json.RawMessage `json:"default,omitempty"`
}

type MemoUpdateOptions struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Memo exposes the persisted key-value store to commands.
type Memo struct {
	store *store.Store
}

var _ command.Executor = (*Memo)(nil)

func NewMemo(s *store.Store) *Memo {
	return &Memo{store: s}
}

func (m *Memo) Execute(ctx context.Context, cmd command.Command) (any, error) {
	switch cmd.Cmd {
	case "get":
		options, err := command.DecodeOptions[MemoKeyOptions](cmd)
		if err != nil {
			return nil, err
		}

		return m.store.Get(options.Key, options.Default), nil

	case "update":
		options, err := command.DecodeOptions[MemoUpdateOptions](cmd)
		if err != nil {
			return nil, err
		}

		value := options.Value
		if len(value) == 0 {
			value = json.RawMessage("null")
		}

		return nil, m.store.Update(options.Key, value)

	case "remove":
		options, err := command.DecodeOptions[MemoKeyOptions](cmd)
		if err != nil {
			return nil, err
		}

		return nil, m.store.Remove(options.Key)

	case "clear":
		return nil, m.store.Clear()

	case "keys":
		return m.store.Keys(), nil

	case "all":
		return m.store.All(), nil
	}

	return nil, command.Unknown(cmd)
}
