// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package util

import "github.com/pkg/errors"

var (
	ErrEmptyCollectionName   = errors.New("collection name cannot be empty")
	ErrInvalidCollectionName = errors.New("collection name contains invalid characters")

	// ErrTerminated is returned by pipeline stages when the run is being
	// shut down by a signal.
	ErrTerminated = errors.New("received termination signal")
)
