package main

import (
	"fmt"
	"os"

	"github.com/hupe1980/landseg"
	"github.com/hupe1980/landseg/fact"
	"github.com/hupe1980/landseg/hierarchy"
	"github.com/hupe1980/landseg/resolve"
)

func readTable(path string) (*fact.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := fact.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func readHierarchy(path string) (*hierarchy.Hierarchy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h, err := hierarchy.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}

// loadInputs reads the hierarchy and every table a job names.
func loadInputs(job *Job) (*hierarchy.Hierarchy, landseg.Inputs, error) {
	var in landseg.Inputs

	h, err := readHierarchy(job.Hierarchy)
	if err != nil {
		return nil, in, err
	}
	if in.Seed, err = readTable(job.Seed); err != nil {
		return nil, in, err
	}

	for _, spec := range job.Controls {
		targets, err := readTable(spec.File)
		if err != nil {
			return nil, in, err
		}
		c := fact.Control{Name: spec.Name, Level: spec.Level, Targets: targets}
		if err := c.Validate(in.Seed.Dims()); err != nil {
			return nil, in, err
		}
		in.Controls = append(in.Controls, c)
	}

	for _, spec := range job.Factors {
		tbl, err := readTable(spec.File)
		if err != nil {
			return nil, in, err
		}
		in.Factors = append(in.Factors, resolve.Factor{
			Name:        spec.Name,
			Table:       tbl,
			On:          spec.On,
			ByGeography: spec.ByGeography,
			Default:     spec.Default,
			Rescales:    spec.Rescales,
		})
	}
	return h, in, nil
}
