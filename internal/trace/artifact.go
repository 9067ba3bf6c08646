package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"golang.org/x/text/unicode/norm"
)

// validComponent matches names usable as artifact path components.
// Only allows alphanumeric, underscore, and hyphen, must start with a letter,
// digit, or underscore. This keeps artifact paths portable and prevents path
// traversal via names.
var validComponent = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_-]*$`)

// ArtifactExt is the file extension for trace artifacts.
const ArtifactExt = ".trace"

// ValidateTag checks that a tag name is a valid artifact-path component.
// The name is NFC-normalized before validation so visually identical names
// map to the same artifact path. Returns the normalized name.
func ValidateTag(tag string) (string, error) {
	return validateComponent("tag", tag)
}

// ValidateTestName checks that a test name is a valid artifact-path component.
// Returns the normalized name.
func ValidateTestName(name string) (string, error) {
	return validateComponent("test name", name)
}

func validateComponent(kind, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%s must not be empty", kind)
	}
	normalized := norm.NFC.String(name)
	if !validComponent.MatchString(normalized) {
		return "", fmt.Errorf("invalid %s %q: must match pattern %s", kind, name, validComponent.String())
	}
	return normalized, nil
}

// ArtifactName returns the artifact file name for a capture.
// Full-run artifacts are named {testName}_{repetition}.{monitor}.trace,
// tagged snapshots {testName}_{repetition}_{tag}.{monitor}.trace.
func ArtifactName(testName string, repetition int, tag, monitor string) string {
	stem := fmt.Sprintf("%s_%d", testName, repetition)
	if tag != "" {
		stem = fmt.Sprintf("%s_%s", stem, tag)
	}
	return fmt.Sprintf("%s.%s%s", stem, monitor, ArtifactExt)
}

// WriteArtifact serializes a trace to its artifact file under dir.
// Returns the full artifact path.
func WriteArtifact(dir, testName string, repetition int, tag string, tr *Trace) (string, error) {
	if tr == nil {
		return "", fmt.Errorf("nil trace")
	}
	data, err := json.MarshalIndent(tr, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal trace: %w", err)
	}
	path := filepath.Join(dir, ArtifactName(testName, repetition, tag, tr.Monitor))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}

// ReadArtifact loads a trace artifact from disk.
func ReadArtifact(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	var tr Trace
	if err := json.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("parse artifact %s: %w", filepath.Base(path), err)
	}
	return &tr, nil
}
