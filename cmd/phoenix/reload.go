package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chazu/phoenix/vm"
)

var (
	reloadForce         bool
	reloadStrict        bool
	reloadForceRollback bool
	reloadTrace         bool
	reloadSources       []string
)

var reloadCmd = &cobra.Command{
	Use:   "reload <base.pxi> <new.pxi>",
	Short: "Load a base image, then hot-reload a new image over it",
	Args:  cobra.ExactArgs(2),
	RunE:  reloadMain,
}

func init() {
	reloadCmd.Flags().BoolVar(&reloadForce, "force", false, "reload every library, changed or not")
	reloadCmd.Flags().BoolVar(&reloadStrict, "strict", false, "treat internal inconsistencies as fatal")
	reloadCmd.Flags().BoolVar(&reloadForceRollback, "force-rollback", false, "validate but always roll back")
	reloadCmd.Flags().BoolVar(&reloadTrace, "trace", false, "trace reload phases")
	reloadCmd.Flags().StringSliceVar(&reloadSources, "modified", nil, "source URLs to treat as modified")
	rootCmd.AddCommand(reloadCmd)
}

func reloadMain(cmd *cobra.Command, args []string) error {
	basePath, newPath := args[0], args[1]

	program, _, err := vm.ReadProgramFile(basePath)
	if err != nil {
		return err
	}

	rt := vm.NewRuntime()
	rt.Optimizer().Start()
	defer rt.Optimizer().Stop()
	rt.Heap.StartMarker(vm.DefaultMarkInterval)
	defer rt.Heap.StopMarker()

	if _, err := rt.LoadInitialProgram(program); err != nil {
		return err
	}
	runLog.Infof("loaded %s: %d libraries, %d classes",
		basePath, program.NumLibraries(), program.NumClasses())

	report, err := rt.Reload(vm.ReloadRequest{
		ProgramPath:     newPath,
		ModifiedSources: reloadSources,
		Force:           reloadForce,
		Strict:          reloadStrict,
		ForceRollback:   reloadForceRollback,
		Trace:           reloadTrace,
	})
	if err != nil {
		return err
	}
	printReport(report)
	if !report.Success {
		return fmt.Errorf("reload %s rejected", report.ID)
	}
	return nil
}
