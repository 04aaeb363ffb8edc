package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var defaultClasses = []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}

// LoadMetadata reads a model metadata file. Files ending in .yaml or .yml are parsed
// as YAML, anything else as JSON. Missing optional fields get MNIST defaults.
func LoadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata Metadata
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &metadata)
	default:
		err = json.Unmarshal(raw, &metadata)
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}

	metadata.applyDefaults()
	if err := metadata.Validate(); err != nil {
		return Metadata{}, err
	}
	return metadata, nil
}

func (m *Metadata) applyDefaults() {
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}
	if m.ImageSize == 0 {
		m.ImageSize = 28
	}
	if len(m.InputShape) == 0 {
		m.InputShape = []int64{1, int64(m.ImageSize), int64(m.ImageSize), 1}
	}
	if len(m.Classes) == 0 {
		m.Classes = append([]string(nil), defaultClasses...)
	}
	if len(m.OutputShape) == 0 {
		m.OutputShape = []int64{1, int64(len(m.Classes))}
	}
}

// Validate checks that the input is a single NHWC grayscale image of ImageSize and that
// the output carries one score per class.
func (m Metadata) Validate() error {
	want := []int64{1, int64(m.ImageSize), int64(m.ImageSize), 1}
	if !equalShape(m.InputShape, want) {
		return fmt.Errorf("%w: model expects input %v, preprocessing produces %v",
			ErrShapeMismatch, m.InputShape, want)
	}
	if m.OutputSize() != len(m.Classes) {
		return fmt.Errorf("%w: output shape %v does not match %d classes",
			ErrShapeMismatch, m.OutputShape, len(m.Classes))
	}
	return nil
}

// InputSize is the number of float32 values a single inference consumes.
func (m Metadata) InputSize() int {
	return shapeSize(m.InputShape)
}

func (m Metadata) OutputSize() int {
	return shapeSize(m.OutputShape)
}

// Digit converts a class index into the integer label it names. Labels that are not
// integers fall back to the index itself.
func (m Metadata) Digit(index int) int {
	if index >= 0 && index < len(m.Classes) {
		if n, err := strconv.Atoi(strings.TrimSpace(m.Classes[index])); err == nil {
			return n
		}
	}
	return index
}

func shapeSize(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	size := 1
	for _, dim := range shape {
		size *= int(dim)
	}
	return size
}

func equalShape(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
