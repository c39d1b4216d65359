// Copyright 2022-2023 VMware, Inc.
//
// This product is licensed to you under the BSD-2 license (the "License").
// You may not use this product except in compliance with the BSD-2 License.
// This product may include a number of subcomponents with separate copyright
// notices and license terms. Your use of these subcomponents is subject to
// the terms and conditions of the subcomponent's license, as noted in the
// LICENSE file.
//
// SPDX-License-Identifier: BSD-2-Clause

package datastore

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// FileDatastore is the default Datastore: a flat directory, either
// caller-supplied (must pre-exist) or a freshly created temporary directory
// removed when Close is called (mirroring the scoped-temp-dir-on-Repository-
// drop behavior).
type FileDatastore struct {
	dir       string
	ephemeral bool
}

// NewFileDatastore uses dir as-is; dir must already exist.
func NewFileDatastore(dir string) (*FileDatastore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &os.PathError{Op: "open", Path: dir, Err: os.ErrInvalid}
	}
	return &FileDatastore{dir: dir}, nil
}

// NewEphemeralFileDatastore creates a fresh temporary directory, removed by Close.
func NewEphemeralFileDatastore() (*FileDatastore, error) {
	dir, err := os.MkdirTemp("", "tufclient-datastore-*")
	if err != nil {
		return nil, err
	}
	return &FileDatastore{dir: dir, ephemeral: true}, nil
}

// Dir returns the backing directory.
func (d *FileDatastore) Dir() string { return d.dir }

func (d *FileDatastore) Reader(ctx context.Context, name string) ([]byte, bool, error) {
	f, err := os.Open(filepath.Join(d.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()
	data, err := readAll(f)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Create writes data to name via a temp-file-then-rename so a reader never
// observes a partially written file.
func (d *FileDatastore) Create(ctx context.Context, name string, data []byte) error {
	tmp := filepath.Join(d.dir, "."+name+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(d.dir, name))
}

// Remove deletes name; a missing file is not an error.
func (d *FileDatastore) Remove(ctx context.Context, name string) error {
	err := os.Remove(filepath.Join(d.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close removes the backing directory if it was created by
// NewEphemeralFileDatastore; it is a no-op for a caller-supplied directory.
func (d *FileDatastore) Close() error {
	if !d.ephemeral {
		return nil
	}
	return os.RemoveAll(d.dir)
}
