// Package main implements the fieldgen command line tool, which fills Anki
// note fields with LLM-generated text, images, and speech audio according to
// a configuration file.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/saccohuo/anki-ai-field-generator/internal/batch"
	"github.com/saccohuo/anki-ai-field-generator/internal/config"
	"github.com/saccohuo/anki-ai-field-generator/internal/factory"
	"github.com/saccohuo/anki-ai-field-generator/internal/llm"
	"github.com/saccohuo/anki-ai-field-generator/internal/mapping"
	"github.com/saccohuo/anki-ai-field-generator/internal/platform/ankisqlite"
	"github.com/saccohuo/anki-ai-field-generator/internal/platform/logger"
)

func main() {
	configPath := flag.String("config", "fieldgen.yaml", "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := logger.Setup(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	// SIGINT requests a stop at the next note boundary; in-flight notes
	// finish first so the collection is never left half-written.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	col, err := ankisqlite.Open(cfg.Collection.Path, log)
	if err != nil {
		return err
	}
	defer func() { _ = col.Close() }()

	mediaDir := cfg.Collection.MediaDir
	if mediaDir == "" {
		mediaDir = filepath.Join(filepath.Dir(cfg.Collection.Path), "collection.media")
	}
	media, err := ankisqlite.NewMediaDir(mediaDir, log)
	if err != nil {
		return err
	}

	opts, err := buildOptions(cfg, col, media, log)
	if err != nil {
		return err
	}

	noteIDs, err := col.NoteIDs(ctx, cfg.Collection.NoteIDs, cfg.Collection.Query)
	if err != nil {
		return err
	}
	if len(noteIDs) == 0 {
		return fmt.Errorf("no notes matched the configured selection")
	}
	opts.NoteIDs = noteIDs

	processor, err := batch.New(opts)
	if err != nil {
		return err
	}
	processor.Start(ctx)

	return consumeEvents(ctx, processor, os.Stdin, os.Stdout)
}

// buildOptions assembles the batch options from the loaded configuration:
// provider clients for each enabled stage plus the mapping entries.
func buildOptions(
	cfg *config.Config,
	col *ankisqlite.Collection,
	media *ankisqlite.MediaDir,
	log *slog.Logger,
) (batch.Options, error) {
	opts := batch.Options{
		Notes:               col,
		Media:               media,
		RetryLimit:          cfg.Retry.Limit,
		RetryDelay:          cfg.Retry.Delay(),
		MissingFieldIsError: cfg.Provider.MissingFieldIsError,
		Logger:              log,
	}

	if cfg.Text.Enabled {
		client, err := factory.NewClient(cfg.Provider.Name, cfg.PromptConfig(), nil, log)
		if err != nil {
			return batch.Options{}, err
		}
		opts.Client = client
		opts.TextEntries = cfg.Text.Entries
	}

	if cfg.Image.Enabled && len(mapping.Enabled(cfg.Image.Entries)) > 0 {
		imageClient, err := factory.NewImageClient(cfg.Image.Provider, cfg.ImagePromptConfig(), nil, log)
		if err != nil {
			return batch.Options{}, err
		}
		opts.ImageClient = imageClient
		opts.ImageEntries = cfg.Image.Entries
		opts.ImageModel = cfg.Image.Model
	}

	if cfg.Audio.Enabled && len(mapping.Enabled(cfg.Audio.Entries)) > 0 {
		speechCfg := cfg.SpeechConfig()
		speechClient, err := factory.NewSpeechClient(cfg.Audio.Provider, speechCfg, nil, log)
		if err != nil {
			return batch.Options{}, err
		}
		if speechClient == nil {
			return batch.Options{}, fmt.Errorf(
				"audio generation is enabled but no speech credentials are configured")
		}
		opts.SpeechClient = speechClient
		opts.AudioEntries = cfg.Audio.Entries
		opts.Speech = llm.SpeechOptions{
			Model:  speechCfg.Model,
			Voice:  speechCfg.Voice,
			Format: speechCfg.Format,
		}
	}

	return opts, nil
}

// consumeEvents drives the processor to completion: progress lines go to out,
// conflicts prompt on in for a decision.
func consumeEvents(ctx context.Context, p *batch.Processor, in *os.File, out *os.File) error {
	reader := bufio.NewReader(in)
	for {
		select {
		case update := <-p.Progress():
			fmt.Fprintf(out, "[%3d%%] %s\n", update.Percent, update.Status)
		case req := <-p.Conflicts():
			req.Resolve(promptDecision(reader, out, req))
		case <-p.Done():
			return finish(p, out)
		case <-ctx.Done():
			// The worker notices the interrupt at the next note boundary;
			// keep consuming events until it finishes.
			for {
				select {
				case <-p.Progress():
				case req := <-p.Conflicts():
					req.Resolve(batch.DecisionAbort)
				case <-p.Done():
					return finish(p, out)
				}
			}
		}
	}
}

func finish(p *batch.Processor, out *os.File) error {
	if err := p.Err(); err != nil {
		return err
	}
	if p.Cancelled() {
		fmt.Fprintln(out, "Stopped at note boundary after interrupt.")
	}
	if skipped := p.Skipped(); len(skipped) > 0 {
		fmt.Fprintf(out, "Skipped %d note(s): %v\n", len(skipped), skipped)
	}
	fmt.Fprintf(out, "Processed %d note(s).\n", p.Processed())
	return nil
}

// promptDecision asks the operator what to do about a concurrent edit.
func promptDecision(reader *bufio.Reader, out *os.File, req *batch.ConflictRequest) batch.Decision {
	fmt.Fprintf(out, "\nNote %d was edited while %s generation was running:\n",
		req.NoteID, req.Section)
	for field, conflict := range req.Fields {
		fmt.Fprintf(out, "  %s:\n    was:       %q\n    now:       %q\n    generated: %q\n",
			field, conflict.Original, conflict.Current, conflict.Generated)
	}
	for {
		fmt.Fprint(out, "Overwrite the edit, skip this note, or abort the run? [o/s/a]: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return batch.DecisionAbort
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "o", "overwrite":
			return batch.DecisionOverwrite
		case "s", "skip":
			return batch.DecisionSkip
		case "a", "abort":
			return batch.DecisionAbort
		}
	}
}
