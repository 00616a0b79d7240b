package github

import (
	"runtime"

	"github.com/matzehuels/lilyenv/pkg/errors"
)

// platforms maps GOOS/GOARCH to python-build-standalone target triples.
var platforms = map[string]string{
	"linux/amd64":  "x86_64-unknown-linux-gnu",
	"linux/arm64":  "aarch64-unknown-linux-gnu",
	"darwin/amd64": "x86_64-apple-darwin",
	"darwin/arm64": "aarch64-apple-darwin",
}

// Platform returns the target triple for the running system.
func Platform() (string, error) {
	return PlatformFor(runtime.GOOS, runtime.GOARCH)
}

// PlatformFor returns the target triple for goos/goarch.
func PlatformFor(goos, goarch string) (string, error) {
	if triple, ok := platforms[goos+"/"+goarch]; ok {
		return triple, nil
	}
	return "", errors.New(errors.ErrCodeUnsupported,
		"no prebuilt interpreters for %s/%s; set platform in the config file", goos, goarch)
}
