// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package options implements the command-line options shared by the
// migration tool's commands.
package options

import (
	"encoding/pem"
	"fmt"
	"os"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	flags "github.com/jessevdk/go-flags"
	"github.com/meridian-labs/catalog-migrate/common/log"
	"github.com/meridian-labs/catalog-migrate/common/password"
	"github.com/meridian-labs/catalog-migrate/common/util"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
	"gopkg.in/yaml.v2"
)

const IncompatibleArgsErrorFormat = "illegal argument combination: cannot specify %s and --uri"

func ConflictingArgsErrorFormat(optionName, uriValue, cliValue, cliOptionName string) error {
	return fmt.Errorf(
		"Invalid Options: Cannot specify different %s in connection URI and command-line option (\"%s\" was specified in the URI and \"%s\" was specified in the %s option)",
		optionName, uriValue, cliValue, cliOptionName)
}

// ToolOptions gathers all of the option groups that apply to every
// invocation of the tool: help/version, verbosity, connection, and auth.
type ToolOptions struct {

	// The name of the tool
	AppName string

	// The version of the tool
	VersionStr string

	// The git commit reference of the tool
	GitCommit string

	// Sub-option types
	*URI
	*General
	*Verbosity
	*Connection
	*SSL
	*Auth
	*Namespace

	// Force direct connection to the server and disable the
	// driver's automatic repl set discovery logic.
	Direct bool

	// ReplicaSetName, if specified, will prevent the obtained session from
	// communicating with any server which is not part of a replica set
	// with the given name.
	ReplicaSetName string

	// ReadPreference, if specified, sets the client default
	ReadPreference *readpref.ReadPref

	// WriteConcern, if specified, sets the client default
	WriteConcern *writeconcern.WriteConcern

	// RetryWrites, if specified, sets the client default.
	RetryWrites *bool

	// for caching the parser
	parser *flags.Parser

	// extra option groups registered by the tool
	extraOptions []ExtraOptions
}

// Namespace holds the database and collection the migration reads from.
type Namespace struct {
	DB         string `short:"d" long:"db" value-name:"<database-name>" description:"database holding the product catalog"`
	Collection string `short:"c" long:"collection" value-name:"<collection-name>" default:"products" description:"live products collection to migrate"`
}

func (ns Namespace) String() string {
	return ns.DB + "." + ns.Collection
}

// General holds options that are not specific to any subsystem.
type General struct {
	Help       bool   `long:"help" description:"print usage"`
	Version    bool   `long:"version" description:"print the tool version and exit"`
	ConfigPath string `long:"config" value-name:"<filename>" description:"path to a YAML configuration file holding sensitive values and migration thresholds"`
}

// Verbosity holds the verbosity-related options.
type Verbosity struct {
	SetVerbosity    func(string) `short:"v" long:"verbose" value-name:"<level>" description:"more detailed log output (include multiple times for more verbosity, e.g. -vvvvv, or specify a numeric value, e.g. --verbose=N)" optional:"true" optional-value:""`
	Quiet           bool         `long:"quiet" description:"hide all log output"`
	VLevel          int          `no-flag:"true"`
	VerbosityParsed bool         `no-flag:"true"`
}

func (v Verbosity) Level() int {
	return v.VLevel
}

func (v Verbosity) IsQuiet() bool {
	return v.Quiet
}

type URI struct {
	ConnectionString string `long:"uri" value-name:"mongodb-uri" description:"mongodb uri connection string"`

	ConnString connstring.ConnString
}

// Connection holds the connection-related options.
type Connection struct {
	Host string `short:"h" long:"host" value-name:"<hostname>" description:"mongodb host to connect to (setname/host1,host2 for replica sets)"`
	Port string `long:"port" value-name:"<port>" description:"server port (can also use --host hostname:port)"`

	Timeout                int `long:"dialTimeout" default:"3" hidden:"true" description:"dial timeout in seconds"`
	SocketTimeout          int `long:"socketTimeout" default:"0" hidden:"true" description:"socket timeout in seconds (0 for no timeout)"`
	ServerSelectionTimeout int `long:"serverSelectionTimeout" hidden:"true" description:"seconds to wait for server selection; 0 means driver default"`
}

// SSL holds the tls-related options.
type SSL struct {
	UseSSL              bool   `long:"ssl" description:"connect to a mongod or mongos that has ssl enabled"`
	SSLCAFile           string `long:"sslCAFile" value-name:"<filename>" description:"the .pem file containing the root certificate chain from the certificate authority"`
	SSLPEMKeyFile       string `long:"sslPEMKeyFile" value-name:"<filename>" description:"the .pem file containing the certificate and key"`
	SSLPEMKeyPassword   string `long:"sslPEMKeyPassword" value-name:"<password>" description:"the password to decrypt the sslPEMKeyFile, if necessary"`
	SSLAllowInvalidCert bool   `long:"sslAllowInvalidCertificates" hidden:"true" description:"bypass the validation for server certificates"`
	SSLAllowInvalidHost bool   `long:"sslAllowInvalidHostnames" hidden:"true" description:"bypass the validation for server name"`
	TLSInsecure         bool   `long:"tlsInsecure" description:"bypass the validation for server's certificate chain and host name"`
}

// ShouldAskForPassword returns true if the user specifies a ssl pem key file
// flag but no password for that file, and the key file has any encrypted
// blocks.
func (ssl *SSL) ShouldAskForPassword() (bool, error) {
	if ssl.SSLPEMKeyFile == "" || ssl.SSLPEMKeyPassword != "" {
		return false, nil
	}
	return ssl.pemKeyFileHasEncryptedKey()
}

func (ssl *SSL) pemKeyFileHasEncryptedKey() (bool, error) {
	b, err := os.ReadFile(ssl.SSLPEMKeyFile)
	if err != nil {
		return false, err
	}

	for {
		var v *pem.Block
		v, b = pem.Decode(b)
		if v == nil {
			break
		}
		if v.Type == "ENCRYPTED PRIVATE KEY" {
			return true, nil
		}
	}

	return false, nil
}

// Auth holds the authentication-related options.
type Auth struct {
	Username  string `short:"u" value-name:"<username>" long:"username" description:"username for authentication"`
	Password  string `short:"p" value-name:"<password>" long:"password" description:"password for authentication"`
	Source    string `long:"authenticationDatabase" value-name:"<database-name>" description:"database that holds the user's credentials"`
	Mechanism string `long:"authenticationMechanism" value-name:"<mechanism>" description:"authentication mechanism to use"`
}

func (auth *Auth) IsSet() bool {
	return *auth != Auth{}
}

// ShouldAskForPassword returns true if the user specifies a username flag
// but no password, and the authentication mechanism requires a password.
func (auth *Auth) ShouldAskForPassword() bool {
	return auth.Username != "" && auth.Password == "" &&
		!(auth.Mechanism == "MONGODB-X509" || auth.Mechanism == "GSSAPI")
}

// ExtraOptions is the interface for tool-specific option groups registered
// on top of the common ones.
type ExtraOptions interface {
	// Name specifying what type of options these are
	Name() string
}

// ConfigurableOptions is implemented by extra option groups that also want
// values from the --config YAML file.
type ConfigurableOptions interface {
	ExtraOptions
	ApplyConfig(map[string]interface{}) error
}

func parseVal(val string) int {
	idx := strings.Index(val, "=")
	ret, err := strconv.Atoi(val[idx+1:])
	if err != nil {
		panic(fmt.Errorf("value was not a valid integer: %v", err))
	}
	return ret
}

// New returns a ToolOptions configured for the named tool with all of the
// common option groups registered.
func New(appName, versionStr, gitCommit, usageStr string) *ToolOptions {
	opts := &ToolOptions{
		AppName:    appName,
		VersionStr: versionStr,
		GitCommit:  gitCommit,

		General:    &General{},
		Verbosity:  &Verbosity{},
		Connection: &Connection{},
		URI:        &URI{},
		SSL:        &SSL{},
		Auth:       &Auth{},
		Namespace:  &Namespace{},
		parser: flags.NewNamedParser(
			fmt.Sprintf("%v %v", appName, usageStr), flags.None),
	}

	// Called when -v or --verbose is parsed
	opts.SetVerbosity = func(val string) {
		// Reset verbosity level when we call ParseArgs again and see the verbosity flag
		if opts.VLevel != 0 && opts.VerbosityParsed {
			opts.VerbosityParsed = false
			opts.VLevel = 0
		}

		if i, err := strconv.Atoi(val); err == nil {
			opts.VLevel = opts.VLevel + i // -v=N or --verbose=N
		} else if matched, _ := regexp.MatchString(`^v+$`, val); matched {
			opts.VLevel = opts.VLevel + len(val) + 1 // Handles the -vvv cases
		} else if matched, _ := regexp.MatchString(`^v+=[0-9]$`, val); matched {
			opts.VLevel = parseVal(val) // I.e. -vv=3
		} else if val == "" {
			opts.VLevel = opts.VLevel + 1 // Increment for every occurrence of flag
		} else {
			log.Logvf(log.Always, "Invalid verbosity value given")
			os.Exit(util.ExitBadOptions)
		}
	}

	if _, err := opts.parser.AddGroup("general options", "", opts.General); err != nil {
		panic(fmt.Errorf("couldn't register general options: %v", err))
	}
	if _, err := opts.parser.AddGroup("verbosity options", "", opts.Verbosity); err != nil {
		panic(fmt.Errorf("couldn't register verbosity options: %v", err))
	}
	if _, err := opts.parser.AddGroup("connection options", "", opts.Connection); err != nil {
		panic(fmt.Errorf("couldn't register connection options: %v", err))
	}
	if _, err := opts.parser.AddGroup("ssl options", "", opts.SSL); err != nil {
		panic(fmt.Errorf("couldn't register SSL options: %v", err))
	}
	if _, err := opts.parser.AddGroup("uri options", "", opts.URI); err != nil {
		panic(fmt.Errorf("couldn't register URI options: %v", err))
	}
	if _, err := opts.parser.AddGroup("authentication options", "", opts.Auth); err != nil {
		panic(fmt.Errorf("couldn't register auth options: %v", err))
	}
	if _, err := opts.parser.AddGroup("namespace options", "", opts.Namespace); err != nil {
		panic(fmt.Errorf("couldn't register namespace options: %v", err))
	}

	runtime.GOMAXPROCS(runtime.NumCPU())
	return opts
}

// PrintHelp prints the usage message for the tool to stdout. Returns whether
// or not the help flag was specified.
func (opts *ToolOptions) PrintHelp(force bool) bool {
	if opts.Help || force {
		opts.parser.WriteHelp(os.Stdout)
	}
	return opts.Help
}

// PrintVersion prints the tool version to stdout. Returns whether or not the
// version flag was specified.
func (opts *ToolOptions) PrintVersion() bool {
	if opts.Version {
		fmt.Printf("%v version: %v\n", opts.AppName, opts.VersionStr)
		fmt.Printf("git version: %v\n", opts.GitCommit)
		fmt.Printf("Go version: %v\n", runtime.Version())
		fmt.Printf("   os: %v\n", runtime.GOOS)
		fmt.Printf("   arch: %v\n", runtime.GOARCH)
	}
	return opts.Version
}

// AddOptions registers an additional options group to this instance.
func (opts *ToolOptions) AddOptions(extraOpts ExtraOptions) {
	_, err := opts.parser.AddGroup(extraOpts.Name()+" options", "", extraOpts)
	if err != nil {
		panic(fmt.Sprintf("error setting command line options for %v: %v",
			extraOpts.Name(), err))
	}
	opts.extraOptions = append(opts.extraOptions, extraOpts)
}

// CallArgParser runs the underlying go-flags parser on the given arguments.
func (opts *ToolOptions) CallArgParser(args []string) ([]string, error) {
	args, err := opts.parser.ParseArgs(args)
	if err != nil {
		return []string{}, err
	}

	// Set VerbosityParsed flag to make sure we reset verbosity level when we call ParseArgs again
	if opts.VLevel != 0 && !opts.VerbosityParsed {
		opts.VerbosityParsed = true
	}

	return args, nil
}

// ParseArgs parses a potential config file followed by the command line
// args, overriding any values in the config file. Returns any extra args not
// accounted for by parsing, as well as an error if the parsing fails.
func (opts *ToolOptions) ParseArgs(args []string) ([]string, error) {
	if err := opts.ParseConfigFile(args); err != nil {
		return []string{}, err
	}

	args, err := opts.CallArgParser(args)
	if err != nil {
		return []string{}, err
	}

	err = opts.NormalizeOptionsAndURI()
	if err != nil {
		return []string{}, err
	}

	return args, err
}

// ParseConfigFile iterates over args to find a --config option. If not
// found, we return. If found, we read the contents of the specified config
// file in YAML format. Sensitive values (password, uri) are applied to the
// common options; everything else is offered to the registered extra option
// groups that accept config values.
func (opts *ToolOptions) ParseConfigFile(args []string) error {
	// Get config file path from the arguments, if specified.
	_, err := opts.CallArgParser(args)
	if err != nil {
		return err
	}

	// No --config option was specified.
	if opts.General.ConfigPath == "" {
		return nil
	}

	// --config option specifies a file path.
	configBytes, err := os.ReadFile(opts.General.ConfigPath)
	if err != nil {
		return errors.Wrapf(err, "error opening file with --config")
	}

	var config map[string]interface{}
	err = yaml.Unmarshal(configBytes, &config)
	if err != nil {
		return errors.Wrapf(err, "error parsing config file %s", opts.General.ConfigPath)
	}

	if pass, ok := config["password"].(string); ok {
		opts.Auth.Password = pass
	}
	if uri, ok := config["uri"].(string); ok {
		opts.URI.ConnectionString = uri
	}

	for _, extraOpt := range opts.extraOptions {
		if configurable, ok := extraOpt.(ConfigurableOptions); ok {
			if err := configurable.ApplyConfig(config); err != nil {
				return errors.Wrapf(err, "error applying config file %s", opts.General.ConfigPath)
			}
		}
	}

	return nil
}

// NormalizeOptionsAndURI syncs the connection string and toolOptions
// objects. It returns an error if there is any conflict between options and
// the connection string. If a value is set on the options, but not the
// connection string, that value is added to the connection string and vice
// versa.
func (opts *ToolOptions) NormalizeOptionsAndURI() error {
	if opts.URI == nil || opts.URI.ConnectionString == "" {
		// If URI not provided, get replica set name and generate connection string
		_, opts.ReplicaSetName = util.SplitHostArg(opts.Host)
		uri, err := NewURI(util.BuildURI(opts.Host, opts.Port))
		if err != nil {
			return err
		}
		opts.URI = uri
	}

	cs, err := connstring.Parse(opts.URI.ConnectionString)
	if err != nil {
		return err
	}
	err = opts.setOptionsFromURI(*cs)
	if err != nil {
		return err
	}

	// finalize auth options, filling in missing passwords
	if opts.Auth.ShouldAskForPassword() {
		pass, err := password.Prompt("mongo user")
		if err != nil {
			return fmt.Errorf("error reading password: %v", err)
		}
		opts.Auth.Password = pass
		opts.ConnString.Password = pass
	}

	shouldAskForSSLPassword, err := opts.SSL.ShouldAskForPassword()
	if err != nil {
		return fmt.Errorf("error determining whether client cert needs password: %v", err)
	}
	if shouldAskForSSLPassword {
		pass, err := password.Prompt("client certificate")
		if err != nil {
			return fmt.Errorf("error reading password: %v", err)
		}
		opts.SSL.SSLPEMKeyPassword = pass
	}

	err = opts.ConnString.Validate()
	if err != nil {
		return errors.Wrap(err, "connection string failed validation")
	}

	// Connect directly to a host if there's no replica set specified, or
	// if the connection string already specified a direct connection.
	// Do not connect directly if loadbalanced.
	if !opts.ConnString.LoadBalanced {
		opts.Direct = (opts.ReplicaSetName == "") || opts.Direct
	}

	return nil
}

// Sets options from the URI. If both CLI option and URI option are set and
// conflict, an error is returned; otherwise whichever is set wins.
func (opts *ToolOptions) setOptionsFromURI(cs connstring.ConnString) error {
	opts.URI.ConnString = cs

	if opts.Host != "" {
		seedlist, replicaSetName := util.SplitHostArg(opts.Host)
		opts.ReplicaSetName = replicaSetName

		if opts.Port != "" {
			for i := range seedlist {
				if !strings.Contains(seedlist[i], ":") {
					seedlist[i] = seedlist[i] + ":" + opts.Port
				}
			}
		}

		csHostSet := make(map[string]bool)
		for _, host := range cs.Hosts {
			csHostSet[host] = true
		}
		for _, host := range seedlist {
			if !csHostSet[host] {
				return ConflictingArgsErrorFormat("host", strings.Join(cs.Hosts, ","), opts.Host, "--host")
			}
		}
	} else if len(cs.Hosts) > 0 {
		if cs.ReplicaSet != "" {
			opts.ReplicaSetName = cs.ReplicaSet
		}
		opts.Host = strings.Join(cs.Hosts, ",")
	}

	if opts.Username != "" && cs.Username != "" && opts.Username != cs.Username {
		return ConflictingArgsErrorFormat("username", cs.Username, opts.Username, "--username")
	}
	if opts.Username == "" {
		opts.Username = cs.Username
	} else if cs.Username == "" {
		cs.Username = opts.Username
	}

	if opts.Password != "" && cs.PasswordSet && opts.Password != cs.Password {
		return fmt.Errorf("Invalid Options: Cannot specify different password in connection URI and command-line option")
	}
	if opts.Password == "" && cs.PasswordSet {
		opts.Password = cs.Password
	} else if opts.Password != "" && !cs.PasswordSet {
		cs.Password = opts.Password
		cs.PasswordSet = true
	}

	if opts.Source != "" && cs.AuthSourceSet && opts.Source != cs.AuthSource {
		return ConflictingArgsErrorFormat("authSource", cs.AuthSource, opts.Source, "--authenticationDatabase")
	}
	if opts.Source == "" && cs.AuthSourceSet {
		opts.Source = cs.AuthSource
	} else if opts.Source != "" && !cs.AuthSourceSet {
		cs.AuthSource = opts.Source
		cs.AuthSourceSet = true
	}

	if opts.Mechanism == "" {
		opts.Mechanism = cs.AuthMechanism
	}

	opts.URI.ConnString = cs
	return nil
}

// GetAuthenticationDatabase returns the authentication database to use:
// the value of --authenticationDatabase if provided, otherwise the database
// specified in the tool's --db arg.
func (opts *ToolOptions) GetAuthenticationDatabase() string {
	if opts.Auth.Source != "" {
		return opts.Auth.Source
	} else if opts.Auth.Mechanism == "GSSAPI" || opts.Auth.Mechanism == "PLAIN" || opts.Auth.Mechanism == "MONGODB-X509" {
		return "$external"
	} else if opts.Namespace != nil && opts.Namespace.DB != "" {
		return opts.Namespace.DB
	}
	return ""
}

func NewURI(unparsed string) (*URI, error) {
	cs, err := connstring.Parse(unparsed)
	if err != nil {
		return nil, fmt.Errorf("error parsing URI from %v: %v", unparsed, err)
	}
	return &URI{ConnectionString: cs.String(), ConnString: *cs}, nil
}

func (uri *URI) ParsedConnString() *connstring.ConnString {
	if uri.ConnectionString == "" {
		return nil
	}
	return &uri.ConnString
}

// LogUnsupportedOptions logs warnings for unknown/unsupported URI
// parameters, as determined by the driver.
func (uri *URI) LogUnsupportedOptions() {
	for key := range uri.ConnString.UnknownOptions {
		log.Logvf(log.Always, "WARNING: ignoring unsupported URI parameter '%v'", key)
	}
}
