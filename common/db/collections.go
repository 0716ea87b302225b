// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package db

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// RenameCollection atomically renames fromDB.fromColl to toColl within the
// same database. The rename fails with NamespaceExistsCode if the target
// name is taken, unless dropTarget is set.
func (sp *SessionProvider) RenameCollection(dbName, fromColl, toColl string, dropTarget bool) error {
	session, err := sp.GetSession()
	if err != nil {
		return err
	}

	res := session.Database("admin").RunCommand(context.Background(), bson.D{
		{Key: "renameCollection", Value: fmt.Sprintf("%s.%s", dbName, fromColl)},
		{Key: "to", Value: fmt.Sprintf("%s.%s", dbName, toColl)},
		{Key: "dropTarget", Value: dropTarget},
	})
	if err := res.Err(); err != nil {
		return fmt.Errorf("error renaming %s.%s to %s.%s: %v", dbName, fromColl, dbName, toColl, err)
	}
	return nil
}

// DropCollection drops the given collection. A missing namespace is not an
// error; the desired state is already reached.
func (sp *SessionProvider) DropCollection(dbName, collName string) error {
	session, err := sp.GetSession()
	if err != nil {
		return err
	}

	err = session.Database(dbName).Collection(collName).Drop(context.Background())
	if err != nil && !strings.Contains(err.Error(), ErrNsNotFound) {
		return fmt.Errorf("error dropping collection %s.%s: %v", dbName, collName, err)
	}
	return nil
}

// CollectionExists reports whether the named collection exists in the
// database.
func (sp *SessionProvider) CollectionExists(dbName, collName string) (bool, error) {
	session, err := sp.GetSession()
	if err != nil {
		return false, err
	}

	names, err := session.Database(dbName).ListCollectionNames(
		context.Background(), bson.M{"name": collName})
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

// IsNamespaceExistsError reports whether the given error is the server's
// "target namespace exists" rename failure.
func IsNamespaceExistsError(err error) bool {
	cmdErr, ok := err.(mongo.CommandError)
	return ok && cmdErr.Code == NamespaceExistsCode
}

// IsIndexConflictError reports whether the given error indicates that an
// equivalent index already exists, which index creation treats as success.
func IsIndexConflictError(err error) bool {
	if err == nil {
		return false
	}
	if cmdErr, ok := err.(mongo.CommandError); ok {
		return cmdErr.Code == IndexOptionsConflictCode || cmdErr.Code == IndexKeySpecsConflictCode
	}
	return strings.Contains(err.Error(), "already exists")
}
