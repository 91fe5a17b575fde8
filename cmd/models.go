package cmd

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"routerbot/pkg/config"
	"routerbot/pkg/generation"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var (
	modelsShowAll  bool
	modelsProvider string
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List generation models and prices",
	Long:  "Prints the model catalog used for generation cost estimates. The configured default model is marked with *.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		catalog, err := loadCatalog(cfg.Generation)
		if err != nil {
			return err
		}

		models := selectModels(catalog, modelsProvider, modelsShowAll)

		fmt.Fprintln(cmd.OutOrStdout(), renderModels(models, cfg.Generation.Model, catalog.Currency()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().BoolVarP(&modelsShowAll, "all", "a", false, "include inactive models")
	modelsCmd.Flags().StringVarP(&modelsProvider, "provider", "p", "", "only list models of this provider (openai, anthropic, google)")
}

func selectModels(catalog *generation.Catalog, provider string, all bool) []generation.ModelDescriptor {
	var models []generation.ModelDescriptor
	if provider = strings.TrimSpace(provider); provider != "" {
		models = catalog.ByProvider(provider)
	} else {
		models = catalog.All()
	}
	if all {
		return models
	}
	return slices.DeleteFunc(models, func(m generation.ModelDescriptor) bool { return !m.IsActive })
}

var (
	modelsHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")).Padding(0, 1)
	modelsCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	modelsMarkStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("44")).Padding(0, 1)
)

func renderModels(models []generation.ModelDescriptor, defaultModel, currency string) string {
	if len(models) == 0 {
		return "no models in catalog"
	}

	defaultRow := -1
	rows := make([][]string, 0, len(models))
	for i, model := range models {
		id := model.ID
		if model.ID == defaultModel {
			id = "* " + id
			defaultRow = i
		}
		active := "yes"
		if !model.IsActive {
			active = "no"
		}
		rows = append(rows, []string{
			id,
			model.Name,
			model.Provider,
			strconv.Itoa(model.MaxTokens),
			formatPrice(model.PricePerKInput),
			formatPrice(model.PricePerKOutput),
			active,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("31"))).
		Headers("MODEL", "NAME", "PROVIDER", "MAX TOKENS", "IN /1K "+currency, "OUT /1K "+currency, "ACTIVE").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return modelsHeaderStyle
			case row == defaultRow:
				return modelsMarkStyle
			default:
				return modelsCellStyle
			}
		})

	return t.String()
}

func formatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', -1, 64)
}
