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

	"github.com/redis/go-redis/v9"
)

// RedisDatastore backs the rollback-detection cache with a networked Redis
// instance, for callers who run many short-lived processes against the same
// repository and want the rollback cache shared across them rather than one
// copy per process's local directory.
type RedisDatastore struct {
	client *redis.Client
	prefix string
}

// NewRedisDatastore wraps an existing *redis.Client; every key is namespaced
// under prefix so multiple repositories can share one Redis instance.
func NewRedisDatastore(client *redis.Client, prefix string) *RedisDatastore {
	return &RedisDatastore{client: client, prefix: prefix}
}

func (d *RedisDatastore) key(name string) string { return d.prefix + ":" + name }

func (d *RedisDatastore) Reader(ctx context.Context, name string) ([]byte, bool, error) {
	data, err := d.client.Get(ctx, d.key(name)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (d *RedisDatastore) Create(ctx context.Context, name string, data []byte) error {
	return d.client.Set(ctx, d.key(name), data, 0).Err()
}

func (d *RedisDatastore) Remove(ctx context.Context, name string) error {
	err := d.client.Del(ctx, d.key(name)).Err()
	if err == redis.Nil {
		return nil
	}
	return err
}
