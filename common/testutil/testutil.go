// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package testutil implements functions for configuring integration tests.
package testutil

import (
	"fmt"
	"os"
	"testing"

	"github.com/meridian-labs/catalog-migrate/common/db"
	"github.com/meridian-labs/catalog-migrate/common/options"
	"github.com/meridian-labs/catalog-migrate/common/testtype"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

// GetBareSession returns a mongo.Client from the environment or from a
// default host and port.
func GetBareSession() (*mongo.Client, error) {
	sessionProvider, _, err := GetBareSessionProvider()
	if err != nil {
		return nil, err
	}
	session, err := sessionProvider.GetSession()
	if err != nil {
		return nil, err
	}
	return session, nil
}

// GetBareSessionProvider returns a session provider from the environment or
// from a default host and port.
func GetBareSessionProvider() (*db.SessionProvider, *options.ToolOptions, error) {
	toolOptions, err := GetToolOptions()
	if err != nil {
		return nil, nil, fmt.Errorf(
			"error getting tool options to create a bare session provider: %w",
			err,
		)
	}

	sessionProvider, err := db.NewSessionProvider(*toolOptions)
	if err != nil {
		return nil, nil, err
	}

	return sessionProvider, toolOptions, nil
}

// GetToolOptions builds ToolOptions from the test mongod URI env var, or from
// localhost defaults when the var is unset.
func GetToolOptions() (*options.ToolOptions, error) {
	toolOptions := options.New("catmigrate", "", "", "")

	fakeArgs := []string{"--uri=" + testtype.MongodURI()}
	_, err := toolOptions.ParseArgs(fakeArgs)
	if err != nil {
		return nil, fmt.Errorf(
			"could not create toolOptions with %#q: %w",
			testtype.MongodURI(),
			err,
		)
	}

	err = toolOptions.NormalizeOptionsAndURI()
	if err != nil {
		return nil, err
	}

	return toolOptions, nil
}

// MakeTempDir will attempt to create a temp directory. If it fails it will
// abort the test. It returns the path to the temp directory and a cleanup
// func that removes it. Always call the cleanup func with `defer`
// immediately after calling this function.
//
// If the `CATMIGRATE_TESTING_NO_CLEANUP` env var is not empty, the cleanup
// function will not delete the directory. This can be useful when
// investigating test failures.
func MakeTempDir(t *testing.T) (string, func()) {
	require := require.New(t)

	dir, err := os.MkdirTemp("", "catmigrate-test")
	require.NoError(err, "can create temp directory")
	cleanup := func() {
		if os.Getenv("CATMIGRATE_TESTING_NO_CLEANUP") == "" {
			err = os.RemoveAll(dir)
			if err != nil {
				t.Fatalf("Failed to delete temp directory: %v", err)
			}
		}
	}
	return dir, cleanup
}
