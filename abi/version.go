// Package abi is the versioned JSON contract between the engine and the
// tools that drive it: run arguments go in, one record per event comes out.
package abi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/mod/semver"
)

// SchemaVersion is the newest contract version this package speaks.
const SchemaVersion = "v1.0.0"

// VersionMismatchError reports a payload whose contract version this
// package cannot decode without losing fields.
type VersionMismatchError struct {
	Requested string
	Supported string
	Reason    string
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("abi version mismatch: requested %q, supported %q: %s", e.Requested, e.Supported, e.Reason)
}

// CheckVersion accepts versions with the supported major version and a
// minor version no newer than the supported one.
func CheckVersion(requested string) error {
	mismatch := func(reason string) error {
		return &VersionMismatchError{Requested: requested, Supported: SchemaVersion, Reason: reason}
	}
	switch {
	case requested == "":
		return mismatch("version is missing")
	case !semver.IsValid(requested):
		return mismatch("not a semantic version")
	case semver.Major(requested) != semver.Major(SchemaVersion):
		return mismatch("major version differs")
	case semver.Compare(semver.MajorMinor(requested), semver.MajorMinor(SchemaVersion)) > 0:
		return mismatch("requested minor version is newer than supported")
	}
	return nil
}

// peekVersion reads the top-level "version" field without decoding the rest.
func peekVersion(data []byte) (string, error) {
	var head struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", fmt.Errorf("decode version: %w", err)
	}
	return head.Version, nil
}

// strictUnmarshal rejects unknown fields and trailing data.
func strictUnmarshal(data []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return err
	}
	var extra any
	if err := dec.Decode(&extra); err != io.EOF {
		return fmt.Errorf("unexpected trailing JSON payload")
	}
	return nil
}
