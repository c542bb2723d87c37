package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/bastion/internal/domain/config"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the host's preconditions without changing anything",
	Long: `Doctor verifies that every tool and precondition a run depends on is
in place: required binaries, a writable state directory, a readable
SSH configuration, a discoverable public address, and, when a domain
is configured, its DNS record and certificate material.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}

	checks := engine.Doctor(cmd.Context())

	fmt.Println(styleTitle.Render("Doctor"))
	failed := 0
	for _, check := range checks {
		fmt.Printf("  %s %-28s %s\n", statusMark(check.OK), check.Name, styleMuted.Render(check.Detail))
		if !check.OK {
			failed++
		}
	}

	if failed > 0 {
		return config.NewUserError(config.ErrCodeValidationFailed,
			fmt.Sprintf("%d of %d checks failed", failed, len(checks))).
			WithSuggestion("fix the failing checks before running harden or activate")
	}
	fmt.Println(styleOK.Render("all checks passed"))
	return nil
}
