package powchain

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/liftedinit/powchain/internal/client"
	"github.com/liftedinit/powchain/internal/models"
)

var chainCmd = &cobra.Command{
	Use:   "chain [node-address]",
	Short: "Print the chain of a node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := nodeClient().FetchChain(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, resp)
	},
}

var mineCmd = &cobra.Command{
	Use:   "mine [node-address]",
	Short: "Ask a node to mine a block",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		block, err := nodeClient().Mine(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, block)
	},
}

var txCmd = &cobra.Command{
	Use:   "tx [node-address] [sender] [recipient] [amount]",
	Short: "Submit a transaction to a node",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.ParseFloat(args[3], 64)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[3], err)
		}

		resp, err := nodeClient().SubmitTransaction(cmd.Context(), args[0], models.Transaction{
			Sender:    args[1],
			Recipient: args[2],
			Amount:    amount,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, resp)
	},
}

var peersCmd = &cobra.Command{
	Use:   "peers [node-address] [peer]...",
	Short: "Register peers with a node",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := nodeClient().RegisterPeers(cmd.Context(), args[0], args[1:])
		if err != nil {
			return err
		}
		return printJSON(cmd, resp)
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [node-address]",
	Short: "Ask a node to resolve conflicts with its peers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := nodeClient().Resolve(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, resp)
	},
}

// nodeClient does not retry: mining and submitting are not idempotent.
func nodeClient() *client.Client {
	return client.NewClient(viper.GetDuration("timeout"), 0)
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
