package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zlnvch/pixelverse/chain"
	"github.com/zlnvch/pixelverse/chain/evm"
	"github.com/zlnvch/pixelverse/client"
	"github.com/zlnvch/pixelverse/quota"
)

const (
	flagServer   = "server"
	flagTimeout  = "timeout"
	flagWallet   = "wallet"
	flagState    = "state"
	flagRPC      = "rpc"
	flagContract = "contract"
	flagDecimals = "decimals"
	flagVerbose  = "verbose"
)

// settings holds the persistent flags. Every flag can also come from a
// PIXELVERSE_ prefixed environment variable.
type settings struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	s := &settings{v: viper.New()}
	s.v.SetEnvPrefix("PIXELVERSE")
	s.v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:           "canvasctl",
		Short:         "Command line client for the pixel canvas",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.WarnLevel
			if s.v.GetBool(flagVerbose) {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String(flagServer, "http://localhost:8080", "canvas server base url")
	flags.Duration(flagTimeout, 10*time.Second, "http request timeout")
	flags.String(flagWallet, "", "wallet address to paint as")
	flags.String(flagState, defaultStatePath(), "file holding the local placement quota")
	flags.String(flagRPC, "", "EVM RPC url for balance lookups; the server is asked when empty")
	flags.String(flagContract, "", "ERC-20 token contract address")
	flags.Uint8(flagDecimals, 18, "token decimals used when the contract does not report them")
	flags.BoolP(flagVerbose, "v", false, "debug logging")
	s.v.BindPFlags(flags)

	rootCmd.AddCommand(
		newSnapshotCmd(s),
		newPlaceCmd(s),
		newWatchCmd(s),
		newLeaderboardCmd(s),
		newQuotaCmd(s),
		newWalletCmd(s),
		newHistoryCmd(s),
		newClearWalletCmd(s),
	)
	return rootCmd
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "pixelverse-quota.json"
	}
	return filepath.Join(dir, "pixelverse", "quota.json")
}

func (s *settings) api() *client.API {
	return client.NewAPI(s.v.GetString(flagServer), s.v.GetDuration(flagTimeout))
}

func (s *settings) wallet() string {
	return s.v.GetString(flagWallet)
}

func (s *settings) balances(ctx context.Context, api *client.API) (chain.BalanceProvider, error) {
	rpcURL, contract := s.v.GetString(flagRPC), s.v.GetString(flagContract)
	if rpcURL == "" || contract == "" {
		return api, nil
	}
	balances, err := evm.NewTokenBalances(ctx, rpcURL, contract, uint8(s.v.GetUint(flagDecimals)))
	if err != nil {
		return nil, eris.Wrap(err, "failed to connect to EVM RPC")
	}
	return balances, nil
}

// painter builds a painter whose quota survives between invocations and
// connects the configured wallet, if any.
func (s *settings) painter(ctx context.Context) (*client.Painter, error) {
	api := s.api()
	balances, err := s.balances(ctx, api)
	if err != nil {
		return nil, err
	}

	session, err := quota.NewSession(quota.NewEngine(nil), quota.NewFilePersister(s.v.GetString(flagState)))
	if err != nil {
		return nil, eris.Wrap(err, "failed to load quota state")
	}

	painter := client.NewPainter(api, client.NewCanvas(), session, balances)
	if wallet := s.wallet(); wallet != "" {
		if _, err := painter.ConnectWallet(ctx, wallet); err != nil {
			return nil, err
		}
	}
	return painter, nil
}
