package main

import (
	"io"
	"os"
)

// writeOutput runs write against stdout when path is "" or "-", or against a
// freshly created file. A failed Close on the file is reported.
func writeOutput(stdout io.Writer, path string, write func(io.Writer) error) (err error) {
	if path == "" || path == "-" {
		return write(stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return write(f)
}
