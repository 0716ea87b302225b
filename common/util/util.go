// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package util provides utility functions shared by the migration tool's
// packages.
package util

import (
	"fmt"
)

// Exit codes for the catalog-migrate binary.
const (
	ExitSuccess = iota
	ExitFailure
	ExitBadOptions
	// ExitRollbackFailed signals that a migration failed and the automatic
	// rollback failed too, leaving the live collection in need of manual
	// operator attention.
	ExitRollbackFailed
)

// ShortUsage returns a help message for the given tool, directing
// users to the --help flag.
func ShortUsage(tool string) string {
	return fmt.Sprintf("try '%s --help' for more information", tool)
}

// Pluralize takes an amount and two strings denoting the singular and plural
// noun forms of the word being counted. The singular form is returned if the
// amount is exactly one, otherwise the plural form.
func Pluralize(amount int, singular, plural string) string {
	if amount == 1 {
		return singular
	}
	return plural
}

// PercentageInt64 computes the percentage of the part out of the total,
// with a 0 total treated as 0%.
func PercentageInt64(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
