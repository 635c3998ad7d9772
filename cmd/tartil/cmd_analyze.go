package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/tartil/internal/analysis"
	"github.com/MrWong99/tartil/internal/observe"
	"github.com/MrWong99/tartil/internal/scoring"
	"github.com/MrWong99/tartil/pkg/audio"
	"github.com/MrWong99/tartil/pkg/types"
)

type analyzeOptions struct {
	audioPath      string
	recitationPath string
	references     []string
	referenceAudio []string
	text           string
	format         string
}

func newAnalyzeCommand(root *rootOptions) *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze [request.json]",
		Short: "Score one recitation against one or more references",
		Long: `Score one recitation against one or more references.

With a positional argument the file holds a complete request (recitation and
reference, as JSON); "-" reads it from stdin.

Otherwise the recitation comes from --recitation (JSON) or --audio (a WAV
recording sent to the configured speech recognition and feature extraction
services), and the references from --reference (JSON) or --reference-audio
(WAV recordings whose text is given with --text). With more than one
reference the best match is reported.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, root, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.audioPath, "audio", "", "WAV recording of the recitation")
	f.StringVar(&opts.recitationPath, "recitation", "", "recitation JSON file")
	f.StringArrayVar(&opts.references, "reference", nil, "reference JSON file (repeatable)")
	f.StringArrayVar(&opts.referenceAudio, "reference-audio", nil, "WAV recording of a reference (repeatable, requires --text)")
	f.StringVar(&opts.text, "text", "", "fully vowelled reference text for --reference-audio")
	f.StringVarP(&opts.format, "format", "f", "json", "output format: json or text")
	cmd.MarkFlagsMutuallyExclusive("audio", "recitation")

	return cmd
}

func runAnalyze(cmd *cobra.Command, root *rootOptions, opts *analyzeOptions, args []string) error {
	if opts.format != "json" && opts.format != "text" {
		return fmt.Errorf("--format %q is invalid; valid values: json, text", opts.format)
	}
	if len(opts.referenceAudio) > 0 && opts.text == "" {
		return types.NewInputError("tartil", "--reference-audio requires --text")
	}
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	analyzer, _, err := setup(cfg, observe.DefaultMetrics())
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if len(args) == 1 {
		if opts.audioPath != "" || opts.recitationPath != "" || len(opts.references) > 0 || len(opts.referenceAudio) > 0 {
			return types.NewInputError("tartil", "a request file cannot be combined with --audio, --recitation or --reference flags")
		}
		var req analysis.Request
		if err := readJSON(cmd.InOrStdin(), args[0], &req); err != nil {
			return err
		}
		res, err := analyzer.Analyze(ctx, req)
		if err != nil {
			return err
		}
		return writeResult(cmd.OutOrStdout(), opts.format, res, nil)
	}

	refs := make([]analysis.Reference, 0, len(opts.references)+len(opts.referenceAudio))
	for _, path := range opts.references {
		var ref analysis.Reference
		if err := readJSON(cmd.InOrStdin(), path, &ref); err != nil {
			return err
		}
		refs = append(refs, ref)
	}
	for _, path := range opts.referenceAudio {
		a, err := readWAV(path)
		if err != nil {
			return err
		}
		ref, err := analyzer.PrepareReference(ctx, a, opts.text)
		if err != nil {
			return fmt.Errorf("reference %s: %w", path, err)
		}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return types.NewInputError("tartil", "at least one --reference or --reference-audio is required")
	}

	var rec analysis.Recitation
	switch {
	case opts.audioPath != "":
		a, err := readWAV(opts.audioPath)
		if err != nil {
			return err
		}
		// References of one analysis recite the same verse; the first text
		// primes the recogniser.
		rec, _, err = analyzer.Capture(ctx, a, refs[0].Text)
		if err != nil {
			return err
		}
	case opts.recitationPath != "":
		if err := readJSON(cmd.InOrStdin(), opts.recitationPath, &rec); err != nil {
			return err
		}
	default:
		return types.NewInputError("tartil", "one of --audio or --recitation is required")
	}

	if len(refs) == 1 {
		res, err := analyzer.Analyze(ctx, analysis.Request{Recitation: rec, Reference: refs[0]})
		if err != nil {
			return err
		}
		return writeResult(cmd.OutOrStdout(), opts.format, res, nil)
	}
	best, err := analyzer.AnalyzeBestOf(ctx, rec, refs)
	if err != nil {
		return err
	}
	if opts.format == "json" {
		return writeJSON(cmd.OutOrStdout(), best)
	}
	return writeResult(cmd.OutOrStdout(), opts.format, best.Result, best)
}

// readJSON decodes the file at path (or stdin for "-") into v. Malformed
// documents are input errors.
func readJSON(stdin io.Reader, path string, v any) error {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return types.NewInputError("tartil", "decode %s: %v", path, err)
	}
	return nil
}

// readWAV decodes a WAV recording. Undecodable files are input errors.
func readWAV(path string) (types.Audio, error) {
	if _, err := os.Stat(path); err != nil {
		return types.Audio{}, err
	}
	a, err := audio.ReadWAVFile(path)
	if err != nil {
		return types.Audio{}, types.NewInputError("tartil", "%s: %v", path, err)
	}
	return a, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// termOrder is the order terms are printed in.
var termOrder = []scoring.Term{scoring.TermAcoustic, scoring.TermPhoneme, scoring.TermProsody, scoring.TermTajweed}

// writeResult prints res as JSON or as a short human-readable summary. best
// is only set for best-of analyses.
func writeResult(w io.Writer, format string, res *analysis.Result, best *analysis.Best) error {
	if format == "json" {
		return writeJSON(w, res)
	}
	r := res.Report
	fmt.Fprintf(w, "Analysis %s\n", res.ID)
	if best != nil {
		fmt.Fprintf(w, "  Best reference : #%d of %d\n", best.Index+1, len(best.Scores))
	}
	fmt.Fprintf(w, "  Overall score  : %.3f\n", r.Overall())
	fmt.Fprintf(w, "  Confidence     : %.3f\n", r.Confidence())
	terms := r.Terms()
	for _, t := range termOrder {
		if v, ok := terms[t]; ok {
			fmt.Fprintf(w, "  %-15s: %.3f\n", t, v)
		} else {
			fmt.Fprintf(w, "  %-15s: (unavailable)\n", t)
		}
	}
	if v := r.Violations(); len(v) > 0 {
		fmt.Fprintf(w, "\nViolations (%d):\n", len(v))
		for _, v := range v {
			fmt.Fprintf(w, "  [%s] %s at %d: %s\n", v.Severity, v.RuleName, v.Position, v.Description)
		}
	}
	if s := r.Suggestions(); len(s) > 0 {
		fmt.Fprintln(w, "\nSuggestions:")
		for _, s := range s {
			fmt.Fprintf(w, "  - %s\n", strings.TrimSpace(s))
		}
	}
	return nil
}
