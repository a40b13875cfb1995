package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Job describes one reconciliation run. Relative paths are resolved
// against the directory of the job file.
type Job struct {
	RunID     string         `yaml:"run_id" env:"RUN_ID"`
	Hierarchy string         `yaml:"hierarchy"`
	Seed      string         `yaml:"seed"`
	Controls  []ControlSpec  `yaml:"controls"`
	Factors   []FactorSpec   `yaml:"factors"`
	Output    string         `yaml:"output" env:"OUTPUT"`
	Rake      RakeConfig     `yaml:"rake"`
	Chunking  ChunkConfig    `yaml:"chunking"`
	Resolve   ResolveConfig  `yaml:"resolve"`
	Resources ResourceConfig `yaml:"resources"`
	Storage   StorageConfig  `yaml:"storage"`
	Log       LogConfig      `yaml:"log" envPrefix:"LOG_"`
	Findings  FindingsConfig `yaml:"findings" envPrefix:"FINDINGS_"`
}

// ControlSpec is a control table in long CSV layout.
type ControlSpec struct {
	Name string `yaml:"name"`
	// Level is the hierarchy level keying the targets; empty means the
	// fine level and "*" an unkeyed control.
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// FactorSpec is a segment factor table in long CSV layout.
type FactorSpec struct {
	Name        string   `yaml:"name"`
	File        string   `yaml:"file"`
	On          []string `yaml:"on"`
	ByGeography bool     `yaml:"by_geography"`
	Default     *float64 `yaml:"default"`
	Rescales    bool     `yaml:"rescales"`
}

type RakeConfig struct {
	Tolerance     float64 `yaml:"tolerance" env:"TOLERANCE"`
	MaxIterations int     `yaml:"max_iterations" env:"MAX_ITERATIONS"`
	Folding       *bool   `yaml:"folding" env:"FOLDING"`
}

type ChunkConfig struct {
	DistrictLevel string `yaml:"district_level" env:"DISTRICT_LEVEL"`
	Size          int    `yaml:"size" env:"CHUNK_SIZE"`
	Workers       int    `yaml:"workers" env:"WORKERS"`
}

type ResolveConfig struct {
	DriftThreshold float64 `yaml:"drift_threshold" env:"DRIFT_THRESHOLD"`
}

type ResourceConfig struct {
	MemoryLimitBytes   int64 `yaml:"memory_limit_bytes" env:"MEMORY_LIMIT_BYTES"`
	IOLimitBytesPerSec int64 `yaml:"io_limit_bytes_per_sec" env:"IO_LIMIT_BYTES_PER_SEC"`
}

// StorageConfig selects the checkpoint backend.
type StorageConfig struct {
	// Backend is "local", "s3", "minio" or empty for no checkpoints.
	Backend     string `yaml:"backend" env:"STORAGE_BACKEND"`
	Dir         string `yaml:"dir" env:"CHECKPOINT_DIR"`
	Bucket      string `yaml:"bucket" env:"S3_BUCKET"`
	Prefix      string `yaml:"prefix" env:"S3_PREFIX"`
	Region      string `yaml:"region" env:"AWS_REGION"`
	CommitTable string `yaml:"commit_table" env:"DDB_COMMIT_TABLE"`
	Endpoint    string `yaml:"endpoint" env:"MINIO_ENDPOINT"`
	AccessKey   string `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
	SecretKey   string `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
	UseSSL      bool   `yaml:"use_ssl" env:"MINIO_USE_SSL"`
	Format      string `yaml:"format" env:"CHECKPOINT_FORMAT"`
	Compression string `yaml:"compression" env:"CHECKPOINT_COMPRESSION"`
	Codec       string `yaml:"codec" env:"CHECKPOINT_CODEC"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// FindingsConfig routes audit findings. Prefix is a blob prefix in the
// checkpoint store; findings are always logged.
type FindingsConfig struct {
	Prefix string `yaml:"prefix" env:"PREFIX"`
}

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LANDSEG_"

// LoadJob reads a job file and applies LANDSEG_* environment overrides.
func LoadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading job file: %w", err)
	}

	var job Job
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parsing job YAML: %w", err)
	}
	if err := env.ParseWithOptions(&job, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	job.resolvePaths(filepath.Dir(path))
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return &job, nil
}

func (j *Job) resolvePaths(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	j.Hierarchy = abs(j.Hierarchy)
	j.Seed = abs(j.Seed)
	j.Output = abs(j.Output)
	for i := range j.Controls {
		j.Controls[i].File = abs(j.Controls[i].File)
	}
	for i := range j.Factors {
		j.Factors[i].File = abs(j.Factors[i].File)
	}
	if j.Storage.Backend == "local" {
		j.Storage.Dir = abs(j.Storage.Dir)
	}
}

// Validate checks the fields a run cannot do without.
func (j *Job) Validate() error {
	var errs []error
	if j.RunID == "" {
		errs = append(errs, errors.New("run_id is required"))
	}
	if j.Hierarchy == "" {
		errs = append(errs, errors.New("hierarchy is required"))
	}
	if j.Seed == "" {
		errs = append(errs, errors.New("seed is required"))
	}
	for i, c := range j.Controls {
		if c.Name == "" || c.File == "" {
			errs = append(errs, fmt.Errorf("controls[%d]: name and file are required", i))
		}
	}
	for i, f := range j.Factors {
		if f.Name == "" || f.File == "" {
			errs = append(errs, fmt.Errorf("factors[%d]: name and file are required", i))
		}
	}
	switch j.Storage.Backend {
	case "":
	case "local":
		if j.Storage.Dir == "" {
			errs = append(errs, errors.New("storage.dir is required for the local backend"))
		}
	case "s3", "minio":
		if j.Storage.Bucket == "" {
			errs = append(errs, fmt.Errorf("storage.bucket is required for the %s backend", j.Storage.Backend))
		}
		if j.Storage.Backend == "minio" && j.Storage.Endpoint == "" {
			errs = append(errs, errors.New("storage.endpoint is required for the minio backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", j.Storage.Backend))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid job: %w", errors.Join(errs...))
	}
	return nil
}
