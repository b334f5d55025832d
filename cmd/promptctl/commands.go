package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/ent0n29/voiceclone/internal/audio"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "promptctl",
		Short: "Inspect, enhance and assemble voice prompt recordings",
		Long: `promptctl runs the voice prompt audio chain on local WAV files.

It uses the same parsing, conditioning and assembly code as the voiceclone
server, so a prompt built here matches what an upload would produce.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newInspectCmd(), newEnhanceCmd(), newAssembleCmd())
	return root
}

func newInspectCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "inspect <file.wav>",
		Short: "Print format and quality analysis of a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			a, err := audio.Analyze(buf)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			out := cmd.OutOrStdout()
			switch strings.ToLower(format) {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(a)
			case "yaml":
				data, err := yaml.Marshal(a)
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			case "text", "":
				printAnalysis(out, args[0], len(buf), a)
				return nil
			default:
				return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, json or yaml")
	return cmd
}

func printAnalysis(w io.Writer, name string, size int, a audio.Analysis) {
	f := a.Format
	row := func(label, value string) {
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render(fmt.Sprintf("%-9s", label)), value)
	}
	fmt.Fprintf(w, "%s %s\n", name, dimStyle.Render("("+formatBytes(size)+")"))
	row("format", fmt.Sprintf("%d Hz, %d ch, %d-bit %s", f.SampleRate, f.Channels, f.BitDepth, f.Encoding))
	row("duration", formatDuration(a.DurationSeconds))
	row("level", fmt.Sprintf("peak %.3f, rms %.3f", a.Peak, a.RMS))
	row("clipping", fmt.Sprintf("%.2f%%", a.ClippingRatio*100))
	row("silence", fmt.Sprintf("%.0f%%", a.SilenceRatio*100))
	row("score", fmt.Sprintf("%.0f/100", a.Score))
	for _, issue := range a.Issues {
		row("issue", warnStyle.Render(issue))
	}
	for _, rec := range a.Recommendations {
		row("tip", rec)
	}
}

func newEnhanceCmd() *cobra.Command {
	var (
		output     string
		light      bool
		percentile float64
		highPass   float64
	)
	cmd := &cobra.Command{
		Use:   "enhance <file.wav>",
		Short: "Noise-gate, normalize and high-pass a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			gate := audio.DefaultGateConfig()
			gate.Percentile = percentile
			c := audio.Conditioner{Gate: gate, HighPassHz: highPass}
			process := c.Enhance
			if light {
				process = c.Preprocess
			}
			out, err := process(buf)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if err := saveToFile(output, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s)\n", output, formatBytes(len(out)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output WAV path")
	cmd.Flags().BoolVar(&light, "light", false, "high-pass only, no gating or normalization")
	cmd.Flags().Float64Var(&percentile, "gate-percentile", 25, "noise floor percentile")
	cmd.Flags().Float64Var(&highPass, "high-pass", audio.DefaultHighPassHz, "high-pass cutoff in Hz")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func newAssembleCmd() *cobra.Command {
	var (
		manifestPath string
		opts         = manifest{
			SampleRate: 24000,
			Channels:   1,
			BitDepth:   16,
			Resampler:  "linear",
			MinSeconds: 3,
		}
	)
	cmd := &cobra.Command{
		Use:   "assemble [a.wav b.wav ...]",
		Short: "Combine recordings into one voice prompt",
		Long: `Combine recordings into one voice prompt.

Inputs come from the arguments or from a YAML/JSON manifest given with -m.
Recordings shorter than --min-seconds are skipped. The result is converted
to the requested output format.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if manifestPath != "" {
				m, err := loadManifest(manifestPath)
				if err != nil {
					return err
				}
				mergeManifest(cmd, &opts, m)
			}
			opts.Inputs = append(opts.Inputs, args...)
			if len(opts.Inputs) == 0 {
				return fmt.Errorf("at least one input recording is required")
			}
			if opts.Output == "" {
				return fmt.Errorf("output file is required, use -o flag or the manifest output field")
			}
			return assemble(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&manifestPath, "manifest", "m", "", "YAML or JSON manifest listing inputs and options")
	f.StringVarP(&opts.Output, "output", "o", "", "output WAV path")
	f.BoolVar(&opts.Enhance, "enhance", false, "run the enhancement chain on each recording first")
	f.IntVar(&opts.SampleRate, "rate", opts.SampleRate, "output sample rate")
	f.IntVar(&opts.Channels, "channels", opts.Channels, "output channel count")
	f.IntVar(&opts.BitDepth, "bits", opts.BitDepth, "output bit depth (16 or 24)")
	f.StringVar(&opts.Resampler, "resampler", opts.Resampler, "resampler: linear or hq")
	f.Float64Var(&opts.MinSeconds, "min-seconds", opts.MinSeconds, "skip recordings shorter than this")
	return cmd
}

// mergeManifest copies manifest values into opts for every flag the user
// did not set explicitly.
func mergeManifest(cmd *cobra.Command, opts *manifest, m manifest) {
	f := cmd.Flags()
	opts.Inputs = append(opts.Inputs, m.Inputs...)
	if !f.Changed("output") && m.Output != "" {
		opts.Output = m.Output
	}
	if !f.Changed("enhance") && m.Enhance {
		opts.Enhance = true
	}
	if !f.Changed("rate") && m.SampleRate > 0 {
		opts.SampleRate = m.SampleRate
	}
	if !f.Changed("channels") && m.Channels > 0 {
		opts.Channels = m.Channels
	}
	if !f.Changed("bits") && m.BitDepth > 0 {
		opts.BitDepth = m.BitDepth
	}
	if !f.Changed("resampler") && m.Resampler != "" {
		opts.Resampler = m.Resampler
	}
	if !f.Changed("min-seconds") && m.MinSeconds > 0 {
		opts.MinSeconds = m.MinSeconds
	}
}

func assemble(cmd *cobra.Command, opts manifest) error {
	rs, err := audio.NewResampler(strings.ToLower(opts.Resampler))
	if err != nil {
		return err
	}
	converter := audio.Converter{Resampler: rs}
	cond := audio.Conditioner{}

	var buffers [][]byte
	for _, path := range opts.Inputs {
		buf, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		f, err := audio.Parse(buf)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if f.Duration() < opts.MinSeconds {
			fmt.Fprintf(cmd.ErrOrStderr(), "skipping %s: %s is shorter than %s\n",
				path, formatDuration(f.Duration()), formatDuration(opts.MinSeconds))
			continue
		}
		if opts.Enhance {
			if buf, err = cond.Enhance(buf); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
		buffers = append(buffers, buf)
	}

	combined, err := audio.Assembler{Converter: converter}.Combine(buffers)
	if err != nil {
		return err
	}
	out, f, err := converter.Convert(combined, audio.Target{
		SampleRate: opts.SampleRate,
		Channels:   opts.Channels,
		BitDepth:   opts.BitDepth,
	})
	if err != nil {
		return err
	}
	if err := saveToFile(opts.Output, out); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d recordings, %s at %d Hz\n",
		opts.Output, len(buffers), formatDuration(f.Duration()), f.SampleRate)
	return nil
}
