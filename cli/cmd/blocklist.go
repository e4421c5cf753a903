package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/airhawk/cli/pkg/output"
	"github.com/telhawk-systems/airhawk/common/macaddr"
	"github.com/telhawk-systems/airhawk/enforcer/pkg/gateway"
)

// EntryResult is the structured output of block, unblock and check.
type EntryResult struct {
	MAC     string `json:"mac" yaml:"mac"`
	Status  string `json:"status" yaml:"status"`
	Blocked bool   `json:"blocked" yaml:"blocked"`
	Total   int    `json:"total_blocked,omitempty" yaml:"total_blocked,omitempty"`
}

// ListResult is the structured output of list.
type ListResult struct {
	BlockedMACs []string `json:"blocked_macs" yaml:"blocked_macs"`
	Total       int      `json:"total" yaml:"total"`
}

var blockCmd = &cobra.Command{
	Use:   "block <mac>",
	Short: "Add a MAC address to the blocklist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, out, err := newClient(cmd)
		if err != nil {
			return err
		}

		res, err := client.Block(cmd.Context(), args[0])
		if err != nil {
			return describe(client, err)
		}

		result := EntryResult{MAC: res.MAC.String(), Status: "blocked", Blocked: true}
		if res.AlreadyBlocked {
			result.Status = "already_blocked"
			result.Total = res.Total
		}
		if handled, err := out.Structured(result); handled {
			return err
		}

		if res.AlreadyBlocked {
			out.Info("MAC %s already blocked (total: %d)", res.MAC, res.Total)
			return nil
		}
		out.Success("Blocked %s", res.MAC)
		return nil
	},
}

var unblockCmd = &cobra.Command{
	Use:   "unblock <mac>",
	Short: "Remove a MAC address from the blocklist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, out, err := newClient(cmd)
		if err != nil {
			return err
		}

		res, err := client.Unblock(cmd.Context(), args[0])
		if err != nil {
			return describe(client, err)
		}

		result := EntryResult{MAC: res.MAC.String(), Status: "removed"}
		if !res.Removed {
			result.Status = "not_in_blocklist"
		}
		if handled, err := out.Structured(result); handled {
			return err
		}

		if res.Removed {
			out.Success("Removed %s from blocklist", res.MAC)
			return nil
		}
		out.Warn("MAC %s not in blocklist", res.MAC)
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <mac>",
	Short: "Report whether a MAC address is blocked",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, out, err := newClient(cmd)
		if err != nil {
			return err
		}

		blocked, err := client.Check(cmd.Context(), args[0])
		if err != nil {
			return describe(client, err)
		}

		mac := macaddr.MustParse(args[0])
		result := EntryResult{MAC: mac.String(), Status: "not_blocked", Blocked: blocked}
		if blocked {
			result.Status = "blocked"
		}
		if handled, err := out.Structured(result); handled {
			return err
		}

		if blocked {
			out.Warn("MAC %s: BLOCKED", mac)
			return nil
		}
		out.Info("MAC %s: NOT BLOCKED", mac)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List blocked MAC addresses",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, out, err := newClient(cmd)
		if err != nil {
			return err
		}

		macs, err := client.List(cmd.Context())
		if err != nil {
			return describe(client, err)
		}

		result := ListResult{BlockedMACs: make([]string, 0, len(macs)), Total: len(macs)}
		for _, m := range macs {
			result.BlockedMACs = append(result.BlockedMACs, m.String())
		}
		if handled, err := out.Structured(result); handled {
			return err
		}

		if len(macs) == 0 {
			out.Info("Blocklist is empty")
			return nil
		}
		table := output.NewTable([]string{"#", "MAC"})
		for i, m := range result.BlockedMACs {
			table.AddRow([]string{strconv.Itoa(i + 1), m})
		}
		out.Table(table)
		out.Info("%d MAC(s) blocked", len(macs))
		return nil
	},
}

// describe turns gateway errors into operator-facing messages.
func describe(client *gateway.Client, err error) error {
	var ferr *macaddr.FormatError
	var uerr *gateway.UnavailableError
	switch {
	case errors.As(err, &ferr):
		return ferr
	case errors.As(err, &uerr):
		return fmt.Errorf("enforcer at %s unavailable (%s): %w", client.Addr(), uerr.Class, err)
	case errors.Is(err, gateway.ErrProtocol):
		return fmt.Errorf("unexpected reply from enforcer at %s: %w", client.Addr(), err)
	}
	return err
}

func init() {
	rootCmd.AddCommand(blockCmd, unblockCmd, checkCmd, listCmd)
}
