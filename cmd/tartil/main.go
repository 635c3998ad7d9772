// Command tartil scores Quran recitations against reference renditions.
//
// It runs single analyses from the command line, lists the Tajweed rule
// catalog, and serves the analysis pipeline over HTTP.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/MrWong99/tartil/pkg/types"
)

// Exit codes for different failure modes.
const (
	ExitSuccess = 0 // Analysis finished
	ExitInput   = 1 // Malformed request or audio
	ExitError   = 2 // Configuration or runtime error
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tartil:", err)
		if errors.Is(err, types.ErrInput) {
			os.Exit(ExitInput)
		}
		os.Exit(ExitError)
	}
}
