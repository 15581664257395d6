package main

import (
	"time"

	"github.com/antiyro/starkroot/bench"
	"github.com/antiyro/starkroot/utils"
	"github.com/spf13/cobra"
)

const (
	outputF   = "output"
	annotateF = "annotate"

	defaultOutput   = "workload.bin"
	defaultAnnotate = true

	outputUsage   = "Path of the workload file to write."
	annotateUsage = "Apply the blocks while generating and record every block's expected " +
		"roots and commitments, so replays can run with --verify."
)

func GenerateCmd() *cobra.Command {
	generateCmd := &cobra.Command{
		Use:   "generate [flags]",
		Short: "Write a workload file for later replay",
		Long: `Generates the synthetic chain shaped by the workload flags and writes it to a
file. Replaying the file with the root command keeps generation out of the
measured run and pins the exact same blocks across backends and machines.`,
	}

	generateCmd.Flags().Var(utils.NewLogLevel(utils.INFO), logLevelF, logLevelFlagUsage)
	generateCmd.Flags().Bool(colourF, defaultColour, colourUsage)
	workloadFlags(generateCmd.Flags())
	generateCmd.Flags().String(outputF, defaultOutput, outputUsage)
	generateCmd.Flags().Bool(annotateF, defaultAnnotate, annotateUsage)

	generateCmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := unmarshalConfig(cmd.Flags(), "")
		if err != nil {
			return err
		}

		output, err := cmd.Flags().GetString(outputF)
		if err != nil {
			return err
		}
		annotate, err := cmd.Flags().GetBool(annotateF)
		if err != nil {
			return err
		}

		log, err := utils.NewZapLogger(utils.NewLogLevel(cfg.LogLevel), cfg.Colour)
		if err != nil {
			return err
		}

		spec := cfg.WorkloadSpec()
		start := time.Now()
		if err = bench.GenerateWorkloadFile(output, spec, annotate, log); err != nil {
			return err
		}
		log.Infow("Workload written", "path", output, "blocks", spec.Blocks,
			"annotated", annotate, "took", time.Since(start).Round(time.Millisecond))
		return nil
	}

	return generateCmd
}
