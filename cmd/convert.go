/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/gofrd/InputParameters"
	"github.com/notargets/gofrd/convert"
	"github.com/notargets/gofrd/ctxlog"
	"github.com/notargets/gofrd/mesh"
	"github.com/notargets/gofrd/utils"
)

const exampleParametersFile = `
########################################
Title: "Beam batch"
Parallel: true
Workers: 0 # Zero means one per CPU
SkipFields: [NORM, SENMISE, SENPS1, SDV]
Summary: true
OutputDir: "" # Empty writes beside each input
########################################
`

// ConvertCmd represents the convert command
var ConvertCmd = &cobra.Command{
	Use:   "convert [flags] file.frd ...",
	Short: "Convert binary .frd files, optionally compressed (.gz, .zst, .lz4)",
	Long: `
Decodes each binary CalculiX result file into a mesh and writes a YAML summary
of its points, cells and result fields. ASCII and unreadable files are reported
as not applicable, a malformed file fails without stopping the batch.
` + "\nExample parameters file:" + exampleParametersFile,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var ip *InputParameters.ConversionParameters
		pfile, _ := cmd.Flags().GetString("inputParametersFile")
		if ip, err = processInput(pfile); err != nil {
			return
		}
		ip.Print()

		switch prof, _ := cmd.Flags().GetString("profile"); prof {
		case "":
		case "cpu":
			defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
		case "mem":
			defer profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
		default:
			return fmt.Errorf("unknown profile mode %q, want cpu or mem", prof)
		}

		quiet, _ := cmd.Flags().GetBool("quiet")
		level := slog.LevelInfo
		if quiet {
			level = slog.LevelWarn
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx = ctxlog.WithLogger(ctx, logger)

		counts := RunConvert(ctx, ip, args, !quiet)
		if counts[convert.Failed] > 0 {
			return fmt.Errorf("%d of %d files failed", counts[convert.Failed], len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ConvertCmd)
	flags := ConvertCmd.Flags()
	flags.StringP("inputParametersFile", "I", "", "YAML file for conversion parameters like:\n\t- Workers\n\t- SkipFields")
	flags.BoolP("serial", "s", false, "convert one file at a time")
	flags.IntP("workers", "w", 0, "number of files converted concurrently, 0 = one per CPU")
	flags.StringSlice("skip", nil, "result fields not carried into the mesh, replaces the default set")
	flags.StringP("outputDir", "o", "", "directory for the output files, default is beside each input")
	flags.Bool("summary", true, "write a YAML mesh summary for each converted file")
	flags.String("profile", "", "write a cpu or mem profile to the current directory")
	for _, key := range []string{"serial", "workers", "skip", "outputDir", "summary"} {
		if err := viper.BindPFlag(key, flags.Lookup(key)); err != nil {
			panic(err)
		}
	}
}

// processInput reads the parameters file, when given, and lays the config
// file, environment and command line on top of it
func processInput(pfile string) (ip *InputParameters.ConversionParameters, err error) {
	ip = InputParameters.NewConversionParameters()
	if len(pfile) != 0 {
		var data []byte
		if data, err = os.ReadFile(pfile); err != nil {
			return nil, err
		}
		if err = ip.Parse(data); err != nil {
			return nil, fmt.Errorf("%s: %w", pfile, err)
		}
	}
	if viper.IsSet("serial") {
		ip.Parallel = !viper.GetBool("serial")
	}
	if viper.IsSet("workers") {
		ip.Workers = viper.GetInt("workers")
	}
	if viper.IsSet("skip") {
		ip.SkipFields = viper.GetStringSlice("skip")
	}
	if viper.IsSet("outputDir") {
		ip.OutputDir = viper.GetString("outputDir")
	}
	if viper.IsSet("summary") {
		ip.Summary = viper.GetBool("summary")
	}
	if err = ip.Validate(); err != nil {
		return nil, err
	}
	return
}

// RunConvert converts files with the given parameters and prints a tally,
// preceded by the statistics of every converted mesh when statistics is set
func RunConvert(ctx context.Context, ip *InputParameters.ConversionParameters,
	files []string, statistics bool) map[convert.Status]int {
	var (
		start   = time.Now()
		workers = ip.Workers
		writer  mesh.Writer
	)
	if !ip.Parallel {
		workers = 1
	}
	if ip.Summary {
		writer = mesh.SummaryWriter{}
	}
	c := convert.NewConverter(workers, writer, ip.SkipFields...)
	c.OutputDir = ip.OutputDir
	c.KeepMeshes = statistics
	if c.OutputDir != "" {
		if err := os.MkdirAll(c.OutputDir, 0o755); err != nil {
			fmt.Printf("error: %s\n", err.Error())
		}
	}

	results := c.ConvertFiles(ctx, files)
	for _, r := range results {
		switch r.Status {
		case convert.Converted:
			fmt.Printf("%-13s %s -> %s [%v]\n", r.Status, r.Path, r.Output, r.Elapsed.Round(time.Millisecond))
			if r.Mesh != nil {
				r.Mesh.PrintStatistics()
			}
		default:
			fmt.Printf("%-13s %s: %v\n", r.Status, r.Path, r.Err)
		}
	}
	counts := convert.Tally(results)
	fmt.Printf("Converted %d, not applicable %d, failed %d in %v\n",
		counts[convert.Converted], counts[convert.NotApplicable], counts[convert.Failed],
		time.Since(start).Round(time.Millisecond))
	fmt.Println(utils.GetMemUsage())
	return counts
}
