package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	"github.com/chazu/phoenix/manifest"
	"github.com/chazu/phoenix/vm"
)

var runLog = commonlog.GetLogger("phoenix.cli")

var (
	runWatch         bool
	runForce         bool
	runStrict        bool
	runForceRollback bool
	runTrace         bool
)

var runCmd = &cobra.Command{
	Use:   "run <image.pxi>",
	Short: "Run a program image, reloading it on change",
	Args:  cobra.ExactArgs(1),
	RunE:  runMain,
}

func init() {
	runCmd.Flags().BoolVarP(&runWatch, "watch", "w", false, "watch sources and reload on change")
	runCmd.Flags().BoolVar(&runForce, "force", false, "reload every library, changed or not")
	runCmd.Flags().BoolVar(&runStrict, "strict", false, "treat internal inconsistencies as fatal")
	runCmd.Flags().BoolVar(&runForceRollback, "force-rollback", false, "validate reloads but always roll back")
	runCmd.Flags().BoolVar(&runTrace, "trace", false, "trace reload phases")
	rootCmd.AddCommand(runCmd)
}

func runMain(cmd *cobra.Command, args []string) error {
	imagePath := args[0]

	program, _, err := vm.ReadProgramFile(imagePath)
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
		imagePath, program.NumLibraries(), program.NumClasses())

	if !runWatch {
		return nil
	}

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return err
	}
	debounce := manifest.DefaultWatchDebounce
	dirs := []string{"."}
	if m != nil {
		dirs = m.SourceDirPaths()
		debounce = m.WatchDebounceDuration()
		runForce = runForce || m.Reload.Force
		runStrict = runStrict || m.Reload.Strict
		runForceRollback = runForceRollback || m.Reload.ForceRollback
		runTrace = runTrace || m.Reload.Trace
	}

	w, err := manifest.Watch(dirs, debounce)
	if err != nil {
		return err
	}
	defer w.Close()
	rt.SetModificationOracle(func(url string, since time.Time) bool {
		return w.ModifiedSince(url, since)
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	runLog.Info("watching for changes")
	for {
		select {
		case <-sig:
			return nil
		case batch := <-w.Events():
			runLog.Infof("%d sources changed, reloading", len(batch))
			report, err := rt.Reload(vm.ReloadRequest{
				ProgramPath:   imagePath,
				Force:         runForce,
				Strict:        runStrict,
				ForceRollback: runForceRollback,
				Trace:         runTrace,
			})
			if err != nil {
				runLog.Errorf("reload failed: %s", err.Error())
				continue
			}
			printReport(report)
		}
	}
}

func printReport(r *vm.ReloadReport) {
	switch {
	case r.Skipped:
		fmt.Println("reload skipped: nothing changed")
	case r.Success:
		fmt.Printf("reload ok: %d libraries loaded, %d preserved\n",
			r.LoadedLibraryCount, r.SavedLibraryCount)
		for _, m := range r.ShapeChangeMappings {
			fmt.Printf("  migrated %d instances of %s\n", m.InstanceCount, m.Class)
		}
	default:
		fmt.Println("reload rejected:")
		for _, reason := range r.Reasons {
			fmt.Printf("  %s: %s\n", reason.Kind, reason.Message)
		}
	}
}
