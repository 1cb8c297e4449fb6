package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different failure modes
const (
	ExitSuccess = 0 // Score tables produced
	ExitInput   = 1 // Unusable structure definition or result files
	ExitError   = 2 // Processing or consistency error
)

// InputError indicates that an input file could not be read or parsed,
// as opposed to a consistency failure found while processing it.
type InputError struct {
	Err error
}

func (e *InputError) Error() string {
	return e.Err.Error()
}

func (e *InputError) Unwrap() error {
	return e.Err
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var inputErr *InputError
		if errors.As(err, &inputErr) {
			os.Exit(ExitInput)
		}
		os.Exit(ExitError)
	}
}
