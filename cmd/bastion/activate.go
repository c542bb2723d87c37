package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/bastion/internal/domain/activation"
)

var activateCmd = &cobra.Command{
	Use:   "activate [service...]",
	Short: "Activate services whose readiness conditions hold",
	Long: `Activate brings up the named services, or the configured set when no
names are given. Services sharing a port fail the whole activation
before anything starts; a service whose readiness conditions do not
hold within their budget is skipped with a reason while the rest
proceed. Firewall ports open only for services that activate.

Examples:
  bastion activate                 # activate the configured services
  bastion activate vpn socks5      # activate a subset`,
	RunE: runActivate,
}

func init() {
	rootCmd.AddCommand(activateCmd)
}

func runActivate(cmd *cobra.Command, args []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}

	plan, err := engine.ActivateServices(cmd.Context(), args)
	if err != nil {
		return err
	}

	printActivation(plan, "activated")
	return nil
}

func printActivation(plan *activation.Plan, verb string) {
	for _, entry := range plan.Entries() {
		ports := make([]string, 0, len(entry.Ports))
		for _, rule := range entry.Ports {
			ports = append(ports, rule.String())
		}
		fmt.Printf("%s %s %s %v\n", statusMark(true), entry.Name, verb, ports)
	}
	for _, skip := range plan.Skipped() {
		fmt.Printf("%s %s skipped: %s\n", styleWarn.Render("~"), skip.Name, skip.Reason)
	}
	if plan.IsEmpty() && len(plan.Skipped()) == 0 {
		fmt.Println(styleMuted.Render("nothing to activate"))
	}
}

var teardownCmd = &cobra.Command{
	Use:   "teardown",
	Short: "Stop the whole service stack",
	Long: `Teardown stops every service in the stack. Firewall rules, the SSH
posture, and certificate material are left untouched.`,
	RunE: runTeardown,
}

func init() {
	rootCmd.AddCommand(teardownCmd)
}

func runTeardown(cmd *cobra.Command, _ []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}

	if err := engine.Teardown(cmd.Context()); err != nil {
		return err
	}
	fmt.Printf("%s service stack stopped\n", statusMark(true))
	return nil
}
