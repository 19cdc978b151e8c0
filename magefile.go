//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Default target to run when none is specified
var Default = Build

// Build compiles the project binaries into the bin/ directory.
// The version is taken from DUMPCONV_VERSION when set.
func Build() error {
	fmt.Println("Building...")
	version := os.Getenv("DUMPCONV_VERSION")
	if version == "" {
		version = "dev"
	}
	return sh.Run("go", "build", "-ldflags", "-X main.version="+version, "-o", "./bin", "./...")
}

// Install copies the dumpconv binary to /usr/local/bin.
func Install() error {
	mg.Deps(Build)
	fmt.Println("Installing...")
	return sh.Run("cp", "bin/dumpconv", "/usr/local/bin/dumpconv")
}

// Test runs all tests in the project with verbose output.
func Test() error {
	fmt.Println("Running Tests...")
	return sh.Run("go", "test", "-v", "./...")
}

// TestParser runs the dump scanner and reader tests only.
func TestParser() error {
	fmt.Println("Running Parser Tests...")
	return sh.Run("go", "test", "-test.fullpath=true", "-timeout", "30s", "-run", "^Test(Scanner|Reader)", "github.com/darianmavgo/dumpconv/converters/sqldump")
}

// Bench runs the emitter and name sanitizer benchmarks.
func Bench() error {
	fmt.Println("Running Benchmarks...")
	return sh.RunV("go", "test", "-run", "^$", "-bench", ".", "-benchmem", "./converters/csv", "./converters/common")
}

// Clean removes the bin directory and test outputs.
func Clean() error {
	fmt.Println("Cleaning...")
	if err := os.RemoveAll("bin"); err != nil {
		return err
	}
	if err := os.RemoveAll("test_output"); err != nil {
		return err
	}
	return nil
}

// Tidy runs go mod tidy.
func Tidy() error {
	fmt.Println("Running go mod tidy...")
	return sh.Run("go", "mod", "tidy")
}

// Check runs formatting and linting checks (fmt, vet).
func Check() error {
	mg.Deps(Fmt, Vet)
	return nil
}

// Fmt runs go fmt ./...
func Fmt() error {
	fmt.Println("Running go fmt...")
	return sh.Run("go", "fmt", "./...")
}

// Vet runs go vet ./...
func Vet() error {
	fmt.Println("Running go vet...")
	return sh.Run("go", "vet", "./...")
}
