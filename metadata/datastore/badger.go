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

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerDatastore backs the rollback-detection cache with an embedded Badger
// key/value store, for callers who want a single-file (well, single-directory)
// cache on a read-mostly filesystem instead of one-file-per-role.
type BadgerDatastore struct {
	db *badger.DB
}

// NewBadgerDatastore opens (creating if needed) a Badger database at dir.
func NewBadgerDatastore(dir string) (*BadgerDatastore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerDatastore{db: db}, nil
}

func (d *BadgerDatastore) Reader(ctx context.Context, name string) ([]byte, bool, error) {
	var data []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte(nil), val...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (d *BadgerDatastore) Create(ctx context.Context, name string, data []byte) error {
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(name), data)
	})
}

func (d *BadgerDatastore) Remove(ctx context.Context, name string) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(name))
	})
	if err == badger.ErrKeyNotFound {
		return nil
	}
	return err
}

// Close releases the underlying Badger database.
func (d *BadgerDatastore) Close() error { return d.db.Close() }
