package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"deep-researcher/internal/archive"
	"deep-researcher/internal/config"
	"deep-researcher/internal/coordinator"
	"deep-researcher/internal/llm"
	"deep-researcher/internal/logging"
	"deep-researcher/internal/report"
	"deep-researcher/internal/scraper"
	"deep-researcher/internal/server"
	"deep-researcher/internal/transport"
	"deep-researcher/pkg/interfaces"
)

var (
	configFile string
	verbose    bool
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "researcher",
		Short: "Deep Researcher - multi-agent research assistant",
		Long: `A research assistant that plans a query, splits the plan into subtasks,
researches every subtask with its own web-searching sub-agent in parallel and
synthesizes the findings into a single cited Markdown report.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	var researchCmd = &cobra.Command{
		Use:   "research [query]",
		Short: "Research a query and write the report",
		Long:  `Research the query and write the Markdown report. Without arguments the query is read from standard input.`,
		RunE:  runResearch,
	}
	researchCmd.Flags().StringP("output", "o", "", "report file path (defaults to output_file from the config)")

	var planCmd = &cobra.Command{
		Use:   "plan [query]",
		Short: "Show the research plan and subtasks without researching",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runPlan,
	}

	var serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the research API over HTTP",
		RunE:  runServe,
	}
	serveCmd.Flags().String("address", "", "listen address (defaults to server.address from the config)")

	var configCmd = &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  `Manage researcher configuration files.`,
	}

	var configInitCmd = &cobra.Command{
		Use:   "init [filename]",
		Short: "Create a default configuration file",
		Long:  `Generate a default configuration file with all available options. Credentials are never written.`,
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConfigInit,
	}

	var configValidateCmd = &cobra.Command{
		Use:   "validate [filename]",
		Short: "Validate a configuration file",
		Long:  `Validate the syntax and values of a configuration file.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runConfigValidate,
	}

	configCmd.AddCommand(configInitCmd, configValidateCmd)
	rootCmd.AddCommand(researchCmd, planCmd, serveCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.ResearcherConfig, zerolog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat), nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\nReceived signal, shutting down gracefully...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// pipeline wires the coordinator and the optional archive from cfg
func pipeline(ctx context.Context, cfg *config.ResearcherConfig, logger zerolog.Logger) (*coordinator.Coordinator, interfaces.Archive, error) {
	limiters := transport.NewRateLimiter()
	llmLimiter := limiters.GetLimiter("llm", cfg.LLM.RequestsPerSecond, cfg.LLM.Burst)

	backend, err := scraper.NewFactory(limiters, logging.Component(logger, "scraper")).Create(cfg.Scraper)
	if err != nil {
		return nil, nil, err
	}

	arch, err := archive.New(ctx, cfg, llmLimiter, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open archive: %w", err)
	}

	provider := llm.NewOpenAIProvider(cfg.LLM, llmLimiter)
	c, err := coordinator.Build(cfg, provider, backend, arch, logger)
	if err != nil {
		if arch != nil {
			arch.Close()
		}
		return nil, nil, err
	}
	return c, arch, nil
}

// readQuery joins args into the query, prompting on in when there are none
func readQuery(args []string, in io.Reader, out io.Writer) (string, error) {
	if len(args) > 0 {
		return strings.TrimSpace(strings.Join(args, " ")), nil
	}

	fmt.Fprint(out, "Enter your research query: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read query: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func runResearch(cmd *cobra.Command, args []string) error {
	query, err := readQuery(args, os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	if query == "" {
		fmt.Println("No query provided. Exiting.")
		return nil
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if output, _ := cmd.Flags().GetString("output"); output != "" {
		cfg.OutputFile = output
	}

	ctx, cancel := signalContext()
	defer cancel()

	c, arch, err := pipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if arch != nil {
		defer arch.Close()
	}

	fmt.Printf("Researching: %s\n", query)
	startTime := time.Now()

	r, err := c.Run(ctx, query)
	if err != nil {
		return fmt.Errorf("research failed: %w", err)
	}

	if err := report.WriteFile(cfg.OutputFile, r); err != nil {
		return err
	}

	fmt.Printf("\nResearch completed in %v\n", time.Since(startTime).Round(time.Second))
	fmt.Printf("Subtasks: %d researched, %d unavailable\n", len(r.Findings)-len(r.FailedSubtasks), len(r.FailedSubtasks))
	if !r.Synthesized {
		fmt.Println("Warning: synthesis failed, the report compiles the raw findings")
	}
	fmt.Printf("LLM calls: %d (%d tokens)\n", r.Usage.Calls, r.Usage.TotalTokens)
	fmt.Printf("Report written to: %s\n", cfg.OutputFile)
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	cfg, logger, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	c, arch, err := pipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if arch != nil {
		defer arch.Close()
	}

	plan, subtasks, err := c.PlanOnly(ctx, query)
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}

	out, err := json.MarshalIndent(server.PlanResponse{Plan: plan, Subtasks: subtasks}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if address, _ := cmd.Flags().GetString("address"); address != "" {
		cfg.Server.Address = address
	}

	ctx, cancel := signalContext()
	defer cancel()

	c, arch, err := pipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if arch != nil {
		defer arch.Close()
	}

	return server.New(cfg, c, arch, logger).Start(ctx)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	filename := "researcher-config.json"
	if len(args) > 0 {
		filename = args[0]
	}

	cfg := config.DefaultConfig()
	if err := cfg.SaveToFile(filename); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Printf("Default configuration saved to: %s\n", filename)
	fmt.Printf("Set %s and %s in the environment or a .env file.\n", config.EnvLLMToken, config.EnvScraperAPIKey)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	filename := args[0]

	cfg, err := config.LoadConfigFromFile(filename)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Printf("Configuration file '%s' is valid!\n", filename)

	if verbose {
		fmt.Printf("\nConfiguration details:\n")
		configJSON, _ := json.MarshalIndent(cfg.Masked(), "", "  ")
		fmt.Println(string(configJSON))
	}
	return nil
}
