// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package password handles prompting for a password interactively when one
// is required but was not supplied on the command line.
package password

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompt writes a prompt for the named credential to stderr and reads a
// password. When stdin is a terminal, echo is disabled while reading.
func Prompt(credential string) (string, error) {
	var pass string
	var err error
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprintf(os.Stderr, "Enter password for %s:", credential)
		pass, err = readPassInteractively(fd)
	} else {
		pass, err = readPassFromReader(os.Stdin)
	}
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(pass, "\n"), nil
}

func readPassInteractively(fd int) (string, error) {
	bytes, err := term.ReadPassword(fd)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func readPassFromReader(r io.Reader) (string, error) {
	pass, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return pass, nil
}
