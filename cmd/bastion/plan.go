package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/bastion/internal/domain/activation"
)

var planList bool

var planCmd = &cobra.Command{
	Use:   "plan [service...]",
	Short: "Show what an activation would do without doing it",
	Long: `Plan probes each selected service's readiness conditions and reports
which would activate and which would be skipped. Nothing is started
and no firewall rule changes.

Examples:
  bastion plan              # plan the configured services
  bastion plan vpn wss      # plan a subset
  bastion plan --list       # list the known services`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().BoolVar(&planList, "list", false, "list the known services")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	if planList {
		printCatalog(activation.DefaultCatalog())
		return nil
	}

	engine, err := newEngine()
	if err != nil {
		return err
	}

	plan, err := engine.PlanActivation(cmd.Context(), args)
	if err != nil {
		return err
	}

	fmt.Println(styleTitle.Render("Activation plan"))
	printActivation(plan, "would activate")
	return nil
}

func printCatalog(catalog activation.Catalog) {
	fmt.Println(styleTitle.Render("Known services"))
	for _, entry := range catalog.Services {
		detail := fmt.Sprintf("%v", entry.Ports)
		if entry.TLS {
			detail += ", needs certificate"
		}
		fmt.Printf("  %-10s %s\n", entry.Name, styleMuted.Render(detail))
	}
}
