package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// WorkerFile is the optional on-disk configuration for cmd/caseworker. Most
// settings still come from FromEnv; this file only covers the handful of
// worker-tuning knobs an operator wants to change without touching the
// process environment, the same split the teacher's root config.Load
// applies between its TOML file and environment-derived values.
type WorkerFile struct {
	Concurrency    int    `toml:"Concurrency"`
	PollIntervalMS int    `toml:"PollIntervalMS"`
	LogFile        string `toml:"LogFile"`
}

// LoadWorkerFile reads path, creating a default file there if it does not
// exist yet, following the teacher's config.Load bootstrap-on-first-run
// behavior.
func LoadWorkerFile(path string) (*WorkerFile, error) {
	wf := &WorkerFile{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefaultWorkerFile(path)
	}
	if _, err := toml.DecodeFile(path, wf); err != nil {
		return nil, err
	}
	if wf.Concurrency <= 0 {
		wf.Concurrency = 4
	}
	if wf.PollIntervalMS <= 0 {
		wf.PollIntervalMS = 500
	}
	return wf, nil
}

func createDefaultWorkerFile(path string) (*WorkerFile, error) {
	wf := &WorkerFile{Concurrency: 4, PollIntervalMS: 500, LogFile: "./casepilot-data/worker.log"}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(wf); err != nil {
		return nil, err
	}
	return wf, nil
}
