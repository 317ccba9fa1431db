package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/memdex/memdex/pkg/dict"
)

// workloadStep describes one batch of keys in a workload file. A non-zero
// DeleteEvery removes every n-th inserted key again, leaving the sparse
// chains a real churn workload produces.
type workloadStep struct {
	Prefix      string `yaml:"prefix"`
	Count       int    `yaml:"count"`
	DeleteEvery int    `yaml:"delete_every"`
}

type workload struct {
	Steps []workloadStep `yaml:"steps"`

	// Resize shrinks the table after the steps ran, before the report.
	Resize bool `yaml:"resize"`
}

// runStats builds a dict from a yaml-described workload and prints the
// chain-length histogram report.
func runStats(logger log.Logger) error {
	if workloadFile == "" {
		return errors.New("stats requires -workload")
	}
	b, err := os.ReadFile(workloadFile)
	if err != nil {
		return errors.Wrap(err, "reading workload file")
	}
	var w workload
	if err := yaml.Unmarshal(b, &w); err != nil {
		return errors.Wrapf(err, "parsing workload file %s", workloadFile)
	}
	if len(w.Steps) == 0 {
		return errors.Errorf("workload file %s has no steps", workloadFile)
	}

	typ, err := buildType()
	if err != nil {
		return err
	}
	d, err := dict.New(cfg.Dict, typ)
	if err != nil {
		return errors.Wrap(err, "creating dict")
	}
	defer d.Release()

	for _, step := range w.Steps {
		for i := 0; i < step.Count; i++ {
			key := step.Prefix + strconv.Itoa(i)
			if err := d.Insert(key, int64(i)); err != nil {
				return errors.Wrapf(err, "inserting key %q", key)
			}
		}
		if step.DeleteEvery > 0 {
			for i := 0; i < step.Count; i += step.DeleteEvery {
				if err := d.Delete(step.Prefix + strconv.Itoa(i)); err != nil {
					return errors.Wrapf(err, "deleting key %q", step.Prefix+strconv.Itoa(i))
				}
			}
		}
	}

	for d.RehashSteps(100) {
	}
	if w.Resize {
		if err := d.Resize(); err != nil {
			return errors.Wrap(err, "resizing")
		}
		for d.RehashSteps(100) {
		}
	}

	level.Info(logger).Log("msg", "workload loaded", "steps", len(w.Steps), "entries", d.Len())
	fmt.Print(d.Stats().String())
	return nil
}
