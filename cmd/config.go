package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mihaisavezi/claude-code-open/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage the LLM proxy configuration.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration interactively",
	Long:  `Initialize configuration by prompting for one provider and one credential.`,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration (credential keys are shown as hashes, never plaintext).`,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  `Validate the current configuration for errors.`,
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	color.Blue("Claude Code Open Configuration Setup")
	color.Yellow("Follow the prompts to configure one LLM provider.")

	reader := bufio.NewReader(os.Stdin)

	providerKey := prompt(reader, "Provider key (e.g. openai-main): ")
	providerType := prompt(reader, "Provider type (openai, anthropic, response_api, gcp_vertex): ")
	apiBase := prompt(reader, "API base URL: ")
	apiKey := prompt(reader, "Upstream API key: ")
	modelPattern := prompt(reader, "Model pattern to accept (e.g. gpt-4*, or * for all): ")
	credentialKey := prompt(reader, "Client-facing API key clients will send (leave blank to skip; requests are then rejected until a credential is configured): ")

	cfg := &config.RuntimeConfig{
		Host: "127.0.0.1",
		Port: 8787,
		Providers: []config.Provider{
			{
				Key:     providerKey,
				Type:    providerType,
				APIBase: apiBase,
				APIKey:  apiKey,
				Weight:  1,
				Enabled: true,
				Models: []config.ModelMapping{
					{Pattern: modelPattern, Mapped: modelPattern},
				},
			},
		},
	}

	if credentialKey != "" {
		cfg.Credentials = []config.Credential{
			{KeyHash: config.HashKey(credentialKey), RPS: 10, Label: "init"},
		}
	}

	if err := cfgMgr.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	color.Green("Configuration saved to: %s", cfgMgr.GetPath())
	color.Cyan("Start the proxy with: cco start")

	return nil
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	if !cfgMgr.Exists() {
		color.Yellow("No configuration found. Run 'cco config init' to create one.")
		return nil
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	color.Blue("Current Configuration:")
	fmt.Printf("  %-15s: %s\n", "Host", cfg.Host)
	fmt.Printf("  %-15s: %d\n", "Port", cfg.Port)
	fmt.Printf("  %-15s: %s\n", "Config Path", cfgMgr.GetPath())
	fmt.Printf("  %-15s: %d\n", "Version", cfg.Version)

	fmt.Println("\nProviders:")

	for _, p := range cfg.Providers {
		fmt.Printf("  - %s (%s) enabled=%v weight=%d\n", p.Key, p.Type, p.Enabled, p.Weight)
		fmt.Printf("    Base: %s\n", p.APIBase)

		for _, m := range p.Models {
			fmt.Printf("    Model: %s -> %s\n", m.Pattern, m.Mapped)
		}
	}

	fmt.Println("\nCredentials:")

	for _, c := range cfg.Credentials {
		label := c.Label
		if label == "" {
			label = "(unlabeled)"
		}

		fmt.Printf("  - %s rps=%.1f hash=%s\n", label, c.RPS, maskString(c.KeyHash))
	}

	return nil
}

func runConfigValidate(_ *cobra.Command, _ []string) error {
	if !cfgMgr.Exists() {
		return errors.New("no configuration found")
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	var validationErrors []string

	if len(cfg.Providers) == 0 {
		validationErrors = append(validationErrors, "no providers configured")
	}

	for i, p := range cfg.Providers {
		if p.Key == "" {
			validationErrors = append(validationErrors, fmt.Sprintf("provider %d: key is required", i))
		}

		switch p.Type {
		case "openai", "anthropic", "response_api", "gcp_vertex":
		default:
			validationErrors = append(validationErrors, fmt.Sprintf("provider %d: unknown type %q", i, p.Type))
		}

		if p.Type == "gcp_vertex" {
			if p.GCPProjectID == "" || p.GCPRegion == "" {
				validationErrors = append(validationErrors, fmt.Sprintf("provider %d: gcp_vertex requires gcp_project_id and gcp_region", i))
			}
		} else if p.APIBase == "" {
			validationErrors = append(validationErrors, fmt.Sprintf("provider %d: api_base is required", i))
		}

		if len(p.Models) == 0 {
			validationErrors = append(validationErrors, fmt.Sprintf("provider %d: at least one model mapping is required", i))
		}
	}

	if len(validationErrors) > 0 {
		color.Red("Configuration validation failed:")

		for _, e := range validationErrors {
			fmt.Printf("  - %s\n", e)
		}

		return errors.New("configuration validation failed")
	}

	color.Green("Configuration is valid!")

	return nil
}

func maskString(s string) string {
	if s == "" {
		return "(not set)"
	}

	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}

	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
