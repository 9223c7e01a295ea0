package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/snapp-incubator/conformer/internal/logging"
)

// Exit codes of the binary.
const (
	exitSame       = 0
	exitDivergence = 1
	exitError      = 2
)

// exitCodeError carries a non-zero exit code without an error message.
type exitCodeError int

func (e exitCodeError) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "conformer",
		Short: "Compare the JSON response shapes of two API backends",
		Long: `conformer sends the same requests to a reference backend and a candidate
backend and reports the first place where their JSON replies differ in
structure. Values are ignored, only kinds, keys and array lengths count.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newCompareCmd(), newEndpointsCmd())
	return root
}

func main() {
	os.Exit(execute(newRootCmd(), os.Args[1:]))
}

func execute(cmd *cobra.Command, args []string) int {
	defer logging.Sync()

	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		return exitSame
	}

	var code exitCodeError
	if errors.As(err, &code) {
		return int(code)
	}

	fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
	return exitError
}
