package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the host's current configuration",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}

	report, err := engine.Status(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Println(styleTitle.Render("Host status"))
	fmt.Printf("  ssh port:   %d\n", report.SSHPort)

	firewall := styleFail.Render("inactive")
	if report.FirewallActive {
		firewall = styleOK.Render("active")
	}
	rules := make([]string, 0, len(report.FirewallRules))
	for _, rule := range report.FirewallRules {
		rules = append(rules, rule.String())
	}
	fmt.Printf("  firewall:   %s  %s\n", firewall, styleMuted.Render(strings.Join(rules, " ")))

	if report.Certificate != nil {
		fmt.Printf("  cert:       %s until %s\n",
			report.Certificate.Domain, report.Certificate.NotAfter.Format("2006-01-02"))
	} else {
		fmt.Printf("  cert:       %s\n", styleMuted.Render("none"))
	}

	if len(report.RunningServices) > 0 {
		fmt.Printf("  services:   %s\n", strings.Join(report.RunningServices, " "))
	} else {
		fmt.Printf("  services:   %s\n", styleMuted.Render("none running"))
	}
	return nil
}
