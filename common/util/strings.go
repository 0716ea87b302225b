// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package util

import (
	"regexp"
	"strings"
)

var uriRedactionRE = regexp.MustCompile(`^([^:/]+)://[^/@]*@`)

// SanitizeURI redacts credentials from a connection string so it can be
// logged safely.
func SanitizeURI(u string) string {
	return uriRedactionRE.ReplaceAllString(u, "$1://[**REDACTED**]@")
}

// SplitHostArg returns the hosts of a --host argument and the replica set
// name, if the argument has the "replSetName/host1,host2" form.
func SplitHostArg(host string) ([]string, string) {
	setName := ""
	if idx := strings.Index(host, "/"); idx != -1 {
		setName = host[:idx]
		host = host[idx+1:]
	}
	return strings.Split(host, ","), setName
}

// BuildURI assembles a mongodb connection string from a host and port,
// either of which may be empty.
func BuildURI(host, port string) string {
	seedlist, _ := SplitHostArg(host)
	for i, hostport := range seedlist {
		if hostport == "" {
			seedlist[i] = "localhost"
		}
		if port != "" && !strings.Contains(hostport, ":") {
			seedlist[i] = seedlist[i] + ":" + port
		}
	}
	return "mongodb://" + strings.Join(seedlist, ",") + "/"
}

// ValidateCollectionName ensures that the collection name the migration
// will write through is usable. The server rejects names containing "$"
// and empty names; catching them up front keeps the failure before any
// mutation happens.
func ValidateCollectionName(collection string) error {
	if collection == "" {
		return ErrEmptyCollectionName
	}
	if strings.ContainsAny(collection, "$\x00") {
		return ErrInvalidCollectionName
	}
	return nil
}
