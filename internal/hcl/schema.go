package hcl

import "github.com/hashicorp/hcl/v2"

// fileRoot is the top-level schema of a configuration file.
type fileRoot struct {
	Graph              *string `hcl:"graph,optional"`
	Root               *string `hcl:"root,optional"`
	Output             *string `hcl:"output,optional"`
	Prefix             *string `hcl:"prefix,optional"`
	Filename           *string `hcl:"filename,optional"`
	Manifest           *string `hcl:"manifest,optional"`
	Main               *string `hcl:"main,optional"`
	Rows               *string `hcl:"rows,optional"`
	RowsFormat         *string `hcl:"rows_format,optional"`
	HashNames          *bool   `hcl:"hash_names,optional"`
	WriteEmptyManifest *bool   `hcl:"write_empty_manifest,optional"`
	Runtime            *string `hcl:"runtime,optional"`

	S3     *s3Block     `hcl:"s3,block"`
	Notify *notifyBlock `hcl:"notify,block"`
	Watch  *watchBlock  `hcl:"watch,block"`
	Log    *logBlock    `hcl:"log,block"`

	Remain hcl.Body `hcl:",remain"`
}

type s3Block struct {
	Endpoint  string `hcl:"endpoint"`
	Bucket    string `hcl:"bucket"`
	Region    string `hcl:"region,optional"`
	AccessKey string `hcl:"access_key,optional"`
	SecretKey string `hcl:"secret_key,optional"`
	KeyPrefix string `hcl:"key_prefix,optional"`
	UseSSL    bool   `hcl:"use_ssl,optional"`
}

type notifyBlock struct {
	URL       string `hcl:"url"`
	Namespace string `hcl:"namespace,optional"`
	Event     string `hcl:"event,optional"`
	Timeout   string `hcl:"timeout,optional"`
}

type watchBlock struct {
	Paths           []string `hcl:"paths,optional"`
	Patterns        []string `hcl:"patterns,optional"`
	Ignore          []string `hcl:"ignore,optional"`
	Debounce        string   `hcl:"debounce,optional"`
	HealthcheckPort int      `hcl:"healthcheck_port,optional"`
}

type logBlock struct {
	Level  string `hcl:"level,optional"`
	Format string `hcl:"format,optional"`
}
