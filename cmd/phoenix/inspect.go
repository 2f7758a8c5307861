package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chazu/phoenix/vm"
)

var inspectClasses bool

var inspectCmd = &cobra.Command{
	Use:   "inspect <image.pxi>",
	Short: "Show the contents of a program image",
	Args:  cobra.ExactArgs(1),
	RunE:  inspectMain,
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectClasses, "classes", false, "list classes per library")
	rootCmd.AddCommand(inspectCmd)
}

func inspectMain(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	p, err := vm.ReadProgram(data)
	if err != nil {
		return err
	}

	fmt.Printf("root:       %s\n", p.RootURL)
	fmt.Printf("libraries:  %d\n", p.NumLibraries())
	fmt.Printf("classes:    %d\n", p.NumClasses())
	fmt.Printf("procedures: %d\n", p.NumProcedures())
	fmt.Printf("image size: %d bytes\n", len(data))

	for _, lib := range p.Libraries {
		fmt.Printf("\n%s (%d classes, %d imports)\n", lib.URL, len(lib.Classes), len(lib.Imports))
		if !inspectClasses {
			continue
		}
		for _, c := range lib.Classes {
			kind := "class"
			if c.Enum {
				kind = "enum"
			}
			fmt.Printf("  %s %s: %d fields, %d functions\n", kind, c.Name, len(c.Fields), len(c.Functions))
		}
	}
	return nil
}
