// Command stripvm is the thin CLI driver: compile assembly to an image,
// or assemble and run one under the tracer.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dvn-dco/stripvm/asm"
	"github.com/dvn-dco/stripvm/config"
	"github.com/dvn-dco/stripvm/host"
	"github.com/dvn-dco/stripvm/parser"
	"github.com/dvn-dco/stripvm/trace"
	"github.com/dvn-dco/stripvm/vm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "stripvm",
		Short: "StripVM assembler and tracer",
	}
	root.AddCommand(newCompileCmd(), newTraceCmd())
	return root
}

func newCompileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compile INPUT OUTPUT",
		Short: "Assemble INPUT (text) into OUTPUT (a StripVM image)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := assembleFile(args[0])
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[1], image, 0o644); err != nil {
				return fmt.Errorf("stripvm: writing %s: %w", args[1], err)
			}
			return nil
		},
	}
}

func newTraceCmd() *cobra.Command {
	var (
		traceMemory bool
		ramSize     int
		spins       int
		maxOps      int
		useTUI      bool
		configPath  string
	)

	cmd := &cobra.Command{
		Use:   "trace INPUT",
		Short: "Assemble INPUT and run it under the stepping tracer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			applyFlagOverrides(cmd, cfg, traceMemory, ramSize, spins, maxOps, useTUI)

			image, err := assembleFile(args[0])
			if err != nil {
				return err
			}

			ramHost := host.NewRAM(cfg.RAMSize)
			ramHost.TraceMemory = cfg.TraceMemory
			v := vm.New(ramHost)
			if err := v.Load(image); err != nil {
				return fmt.Errorf("stripvm: loading image: %w", err)
			}

			tracer := trace.New(v, *cfg)
			if cfg.UseTUI {
				return tracer.RunTUI()
			}
			return tracer.Run(os.Stdout)
		},
	}

	cmd.Flags().BoolVarP(&traceMemory, "trace-memory", "m", false, "print a line for every memory access")
	cmd.Flags().IntVar(&ramSize, "ram", 0, "RAM size in bytes (if not given: use config/default)")
	cmd.Flags().IntVar(&spins, "spins", 0, "number of respins to execute (if not given: use config/default)")
	cmd.Flags().IntVar(&maxOps, "ops", 0, "cumulative step quota across all spins (0: unbounded)")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "render the trace in a live TUI instead of stdout")
	cmd.Flags().StringVar(&configPath, "config", "", "path to a config file (default: platform config dir)")

	return cmd
}

// applyFlagOverrides lets any flag the user actually set on the command
// line win over whatever config.Load produced, even when set to 0; flags
// not given on the command line pass the config/default value through
// untouched.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config, traceMemory bool, ramSize, spins, maxOps int, useTUI bool) {
	flags := cmd.Flags()
	if flags.Changed("trace-memory") {
		cfg.TraceMemory = traceMemory
	}
	if flags.Changed("ram") {
		cfg.RAMSize = ramSize
	}
	if flags.Changed("spins") {
		cfg.Spins = spins
	}
	if flags.Changed("ops") {
		cfg.MaxOps = maxOps
	}
	if flags.Changed("tui") {
		cfg.UseTUI = useTUI
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

func assembleFile(path string) ([]byte, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("stripvm: reading %s: %w", path, err)
	}

	prog, err := parser.Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("stripvm: parsing %s: %w", path, err)
	}

	image, err := asm.Compile(prog)
	if err != nil {
		return nil, fmt.Errorf("stripvm: assembling %s: %w", path, err)
	}
	return image, nil
}
