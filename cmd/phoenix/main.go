// Phoenix CLI - run programs with hot reload
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

var (
	verbosity int
	logFile   string
)

var rootCmd = &cobra.Command{
	Use:   "phoenix",
	Short: "Phoenix runtime with hot reload",
	Long: `Phoenix runs compiled program images and swaps in new program
versions without restarting: modified libraries are reloaded, changed
instance layouts are migrated in place, and running code keeps going.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var path *string
		if logFile != "" {
			path = &logFile
		}
		commonlog.Configure(verbosity, path)
	},
}

func init() {
	rootCmd.PersistentFlags().IntVarP(&verbosity, "verbose", "v", 0, "log verbosity")
	rootCmd.PersistentFlags().StringVar(&logFile, "log", "", "log to file instead of stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
