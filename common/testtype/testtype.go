// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package testtype implements functions for skipping tests that need
// resources (like a live mongod) that may not be present.
package testtype

import (
	"os"
	"strconv"
	"testing"
)

const (
	// IntegrationTestType tests require a live mongod; enable them with
	// CATMIGRATE_TESTING_INTEGRATION=true. The connection string is taken
	// from CATMIGRATE_TESTING_MONGOD, defaulting to localhost:27017.
	IntegrationTestType = "integration"
)

const (
	integrationEnvVar = "CATMIGRATE_TESTING_INTEGRATION"
	mongodEnvVar      = "CATMIGRATE_TESTING_MONGOD"
)

// HasTestType returns whether tests of the given type are enabled in this
// environment.
func HasTestType(testType string) bool {
	if testType != IntegrationTestType {
		return true
	}
	enabled, err := strconv.ParseBool(os.Getenv(integrationEnvVar))
	return err == nil && enabled
}

// SkipUnlessTestType skips the test unless tests of the given type are
// enabled.
func SkipUnlessTestType(t *testing.T, testType string) {
	if !HasTestType(testType) {
		t.Skipf("skipping %s test", testType)
	}
}

// MongodURI returns the connection string integration tests should use.
func MongodURI() string {
	if uri := os.Getenv(mongodEnvVar); uri != "" {
		return uri
	}
	return "mongodb://localhost:27017/"
}
