package config

import "time"

// Config holds scanflow configuration.
// Stored at: {home}/config.yaml
type Config struct {
	PrefixDefault string               `mapstructure:"prefix_default" yaml:"prefix_default"`
	Sources       map[string]SourceCfg `mapstructure:"sources" yaml:"sources"`
	Intervals     IntervalsCfg         `mapstructure:"intervals" yaml:"intervals"`
	Stability     StabilityCfg         `mapstructure:"stability" yaml:"stability"`
	OCR           OCRCfg               `mapstructure:"ocr" yaml:"ocr"`
	Bypass        BypassCfg            `mapstructure:"bypass" yaml:"bypass"`
	Repair        ToolCfg              `mapstructure:"repair" yaml:"repair"`
	Email         EmailCfg             `mapstructure:"email" yaml:"email"`
	Mirror        MirrorCfg            `mapstructure:"mirror" yaml:"mirror"`
	Metrics       MetricsCfg           `mapstructure:"metrics" yaml:"metrics"`
	Log           LogCfg               `mapstructure:"log" yaml:"log"`
}

// SourceCfg configures one ingest source.
type SourceCfg struct {
	Tag    string `mapstructure:"tag" yaml:"tag"`       // embedded in canonical names
	Strict bool   `mapstructure:"strict" yaml:"strict"` // unparseable names go to manual review
}

// IntervalsCfg holds per-stage polling cadences.
type IntervalsCfg struct {
	Loop        time.Duration `mapstructure:"loop" yaml:"loop"`
	Ingest      time.Duration `mapstructure:"ingest" yaml:"ingest"`
	OCROutput   time.Duration `mapstructure:"ocr_output" yaml:"ocr_output"`
	OCRQueue    time.Duration `mapstructure:"ocr_queue" yaml:"ocr_queue"`
	Consumption time.Duration `mapstructure:"consumption" yaml:"consumption"`
	Email       time.Duration `mapstructure:"email" yaml:"email"`
	Metrics     time.Duration `mapstructure:"metrics" yaml:"metrics"`
}

// StabilityCfg configures the quiet periods before a file is touched.
type StabilityCfg struct {
	Quiet       time.Duration `mapstructure:"quiet" yaml:"quiet"`
	OutputQuiet time.Duration `mapstructure:"output_quiet" yaml:"output_quiet"`
}

// OCRCfg configures the OCR engine contract.
type OCRCfg struct {
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Cooldown   time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
	ReportName string        `mapstructure:"report_name" yaml:"report_name"`
}

// BypassCfg controls skipping OCR for documents that already carry text.
type BypassCfg struct {
	Enabled       bool     `mapstructure:"enabled" yaml:"enabled"`
	MinTextLength int      `mapstructure:"min_text_length" yaml:"min_text_length"`
	Command       string   `mapstructure:"command" yaml:"command"` // empty: in-process probe
	Args          []string `mapstructure:"args" yaml:"args"`
}

// ToolCfg describes an external command. An empty Command selects the
// built-in implementation where one exists.
type ToolCfg struct {
	Command string        `mapstructure:"command" yaml:"command"`
	Args    []string      `mapstructure:"args" yaml:"args"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// EmailCfg configures the email attachment fetcher.
type EmailCfg struct {
	Command  string            `mapstructure:"command" yaml:"command"`
	Args     []string          `mapstructure:"args" yaml:"args"`
	Env      map[string]string `mapstructure:"env" yaml:"env"` // values support ${ENV_VAR} syntax
	Timeout  time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	Attempts uint              `mapstructure:"attempts" yaml:"attempts"`
}

// MirrorCfg selects where archived documents are mirrored.
type MirrorCfg struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // "none", "local", "s3"
	S3     S3Cfg  `mapstructure:"s3" yaml:"s3"`
}

// S3Cfg holds S3/MinIO mirror settings.
type S3Cfg struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"` // host:port, no scheme
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Region    string `mapstructure:"region" yaml:"region"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
}

// MetricsCfg configures the prometheus textfile export.
type MetricsCfg struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile"` // relative to the logs dir
}

// LogCfg configures the process logger.
type LogCfg struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Source names. Ingest runs them in this order.
const (
	SourceScanner = "scanner"
	SourceMobile  = "mobile"
	SourceEmail   = "email"
)

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PrefixDefault: "DOC",
		Sources: map[string]SourceCfg{
			SourceScanner: {Tag: "adf", Strict: true},
			SourceMobile:  {Tag: "app", Strict: false},
			SourceEmail:   {Tag: "mail", Strict: false},
		},
		Intervals: IntervalsCfg{
			Loop:        time.Second,
			Ingest:      60 * time.Second,
			OCROutput:   5 * time.Second,
			OCRQueue:    5 * time.Second,
			Consumption: 10 * time.Minute,
			Email:       10 * time.Minute,
			Metrics:     time.Minute,
		},
		Stability: StabilityCfg{
			Quiet:       120 * time.Second,
			OutputQuiet: 10 * time.Second,
		},
		OCR: OCRCfg{
			Timeout:    time.Hour,
			Cooldown:   6 * time.Hour,
			ReportName: "Hot Folder Log.txt",
		},
		Bypass: BypassCfg{
			Enabled:       true,
			MinTextLength: 100,
		},
		Repair: ToolCfg{
			Timeout: 5 * time.Minute,
		},
		Email: EmailCfg{
			Env: map[string]string{
				"IMAP_HOST":     "${SCANFLOW_IMAP_HOST}",
				"IMAP_USER":     "${SCANFLOW_IMAP_USER}",
				"IMAP_PASSWORD": "${SCANFLOW_IMAP_PASSWORD}",
				"IMAP_FOLDER":   "${SCANFLOW_IMAP_FOLDER}",
			},
			Timeout:  5 * time.Minute,
			Attempts: 3,
		},
		Mirror: MirrorCfg{
			Driver: "local",
			S3: S3Cfg{
				AccessKey: "${SCANFLOW_S3_ACCESS_KEY}",
				SecretKey: "${SCANFLOW_S3_SECRET_KEY}",
				Bucket:    "scanflow",
				Region:    "us-east-1",
				UseSSL:    true,
			},
		},
		Metrics: MetricsCfg{
			Textfile: "scanflow.prom",
		},
		Log: LogCfg{
			Level:  "info",
			Format: "text",
		},
	}
}

// GetSource returns a source config by name.
func (c *Config) GetSource(name string) (SourceCfg, bool) {
	cfg, ok := c.Sources[name]
	return cfg, ok
}
