package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/reelsmith/studio/internal/logging"
	"github.com/reelsmith/studio/internal/studio"
	"github.com/spf13/cobra"
)

var checkChainJSON bool

var checkChainCmd = &cobra.Command{
	Use:   "check-chain <project-id>",
	Short: "Report transition chain integrity issues of a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		svc := studio.NewService(studio.NewRepository(database.Conn()), logging.Nop())
		ctx := cmd.Context()
		if _, err := svc.GetProject(ctx, args[0]); err != nil {
			return err
		}
		issues, err := svc.ValidateProjectChain(ctx, args[0])
		if err != nil {
			return err
		}

		if checkChainJSON {
			if issues == nil {
				issues = []studio.ChainIssue{}
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(issues)
		}
		if len(issues) == 0 {
			fmt.Println("chain ok")
			return nil
		}
		for _, issue := range issues {
			fmt.Printf("%-14s %s  %s\n", issue.Type, issue.ShotID, issue.Message)
		}
		return fmt.Errorf("%d chain issue(s)", len(issues))
	},
}

func init() {
	checkChainCmd.Flags().BoolVar(&checkChainJSON, "json", false, "Print issues as JSON")
}
