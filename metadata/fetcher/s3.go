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

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// s3API is the subset of *s3.Client that S3Transport needs, so tests can
// supply a fake without standing up real AWS credentials.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Transport fetches metadata and target files from an S3 bucket, for
// repositories hosted as "s3://bucket/key" base URLs.
type S3Transport struct {
	Client s3API
	Bucket string
}

// NewS3Transport loads the default AWS config (environment, shared config
// files, instance role) and targets the given bucket.
func NewS3Transport(ctx context.Context, bucket string) (*S3Transport, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return &S3Transport{Client: s3.NewFromConfig(cfg), Bucket: bucket}, nil
}

func (t *S3Transport) Fetch(ctx context.Context, location string) (io.ReadCloser, error) {
	key := strings.TrimPrefix(location, "s3://"+t.Bucket+"/")
	key = strings.TrimPrefix(key, "/")
	out, err := t.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *s3.NoSuchKey
		var respErr *smithyhttp.ResponseError
		if errors.As(err, &notFound) {
			return nil, &TransportError{Kind: FileNotFound, Location: location, Err: err}
		}
		if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
			return nil, &TransportError{Kind: FileNotFound, Location: location, Err: err}
		}
		return nil, &TransportError{Kind: Other, Location: location, Err: err}
	}
	return out.Body, nil
}
