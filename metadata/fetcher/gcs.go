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

package fetcher

import (
	"context"
	"errors"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// GCSTransport fetches metadata and target files from a Google Cloud Storage
// bucket, for repositories hosted as "gs://bucket/object" base URLs.
type GCSTransport struct {
	Client *storage.Client
	Bucket string
}

// NewGCSTransport builds a GCSTransport using application-default credentials.
func NewGCSTransport(ctx context.Context, bucket string) (*GCSTransport, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GCSTransport{Client: client, Bucket: bucket}, nil
}

func (t *GCSTransport) Fetch(ctx context.Context, location string) (io.ReadCloser, error) {
	object := strings.TrimPrefix(location, "gs://"+t.Bucket+"/")
	object = strings.TrimPrefix(object, "/")
	r, err := t.Client.Bucket(t.Bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, &TransportError{Kind: FileNotFound, Location: location, Err: err}
		}
		return nil, &TransportError{Kind: Other, Location: location, Err: err}
	}
	return r, nil
}
