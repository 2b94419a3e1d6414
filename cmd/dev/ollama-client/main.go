// Command ollama-client drafts a phase document against a local Ollama
// instance using the same prompt and parsing as the server's AI jobs.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/garnizeh/taosdlc/internal/ai"
	"github.com/garnizeh/taosdlc/internal/config"
	"github.com/garnizeh/taosdlc/internal/workflow"
	"github.com/garnizeh/taosdlc/pkg/ollama"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to config YAML file")
		model      = flag.String("model", "", "Model name; defaults to ai.model from the config")
		phase      = flag.Int("phase", 1, "Phase number to draft")
		project    = flag.String("project", "Demo", "Project name")
		prompt     = flag.String("prompt", "Draft the requirements for a small invoicing service", "What to draft")
		list       = flag.Bool("list", false, "List local models and exit")
		showPrompt = flag.Bool("show-prompt", false, "Print the rendered prompt before generating")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ollama.SetLogger(logger)

	if err := run(logger, *configPath, *model, *phase, *project, *prompt, *list, *showPrompt); err != nil {
		logger.Error("ollama-client failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath, model string, phase int, project, prompt string, list, showPrompt bool) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	client, err := ollama.NewDefaultClient(cfg.Ollama)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if list {
		models, err := client.ListModels(ctx)
		if err != nil {
			return err
		}
		for _, m := range models {
			fmt.Printf("%s\t%d\n", m.Name, m.Size)
		}
		return nil
	}

	aiCfg := cfg.AI
	if model != "" {
		aiCfg.Model = model
	}
	if aiCfg.Model == "" && len(cfg.Ollama.DefaultModelNames) > 0 {
		aiCfg.Model = cfg.Ollama.DefaultModelNames[0]
	}
	engine, err := ai.NewEngine(client, aiCfg, nil, logger)
	if err != nil {
		return err
	}

	req := ai.PhaseRequest{
		ProjectName: project,
		PhaseNumber: phase,
		PhaseName:   workflow.PhaseName(phase),
		Request:     prompt,
	}
	if showPrompt {
		text, err := engine.RenderPrompt(req)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, text)
	}

	s, err := engine.GeneratePhase(ctx, req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
