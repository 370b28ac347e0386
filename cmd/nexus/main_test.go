package main

import "testing"

func TestVersionConstant(t *testing.T) {
	if Version == "" {
		t.Error("Version constant should not be empty")
	}
}

func TestVersionExists(t *testing.T) {
	_ = Version
}
