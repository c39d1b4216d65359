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

package updater

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/practicaltuf/tufclient/metadata"
	"github.com/practicaltuf/tufclient/metadata/datastore"
)

// latestKnownTime is the persisted shape of datastore.LatestKnownTimeFile.
type latestKnownTime struct {
	Observed time.Time `json:"observed"`
}

// timeOracle enforces that the wall clock observed across load cycles never
// moves backward, guarding against an attacker rolling back the local clock
// to resurrect metadata that has genuinely expired. It compares the current
// time against a check file in the datastore and rewrites it whenever the
// observed time advances.
type timeOracle struct {
	ds datastore.Datastore
}

func newTimeOracle(ds datastore.Datastore) *timeOracle {
	return &timeOracle{ds: ds}
}

// Now returns the current wall-clock time, after checking it against the last
// time recorded in the datastore. It returns metadata.ErrSystemTimeSteppedBackward
// if the clock has moved backward since the last successful load cycle.
func (o *timeOracle) Now(ctx context.Context) (time.Time, error) {
	now := time.Now().UTC()
	if o.ds == nil {
		return now, nil
	}
	raw, ok, err := o.ds.Reader(ctx, datastore.LatestKnownTimeFile)
	if err != nil {
		return time.Time{}, err
	}
	if ok {
		var last latestKnownTime
		if err := json.Unmarshal(raw, &last); err != nil {
			return time.Time{}, metadata.ErrParseMetadata{Role: "latest_known_time", Err: err}
		}
		if now.Before(last.Observed) {
			return time.Time{}, metadata.ErrSystemTimeSteppedBackward{Observed: now, LastKnown: last.Observed}
		}
	}
	if err := o.record(ctx, now); err != nil {
		return time.Time{}, err
	}
	return now, nil
}

func (o *timeOracle) record(ctx context.Context, now time.Time) error {
	data, err := json.Marshal(latestKnownTime{Observed: now})
	if err != nil {
		return err
	}
	if err := o.ds.Create(ctx, datastore.LatestKnownTimeFile, data); err != nil {
		log.Warnf("failed to persist latest known time: %v", err)
		return err
	}
	return nil
}
