package kv

import (
	"github.com/ValentinKolb/rKV/cmd/util"
	"github.com/ValentinKolb/rKV/resp/client"
	"github.com/spf13/cobra"
)

var (
	kvClient *client.Client

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:               "kv",
		Short:             "Perform key-value store operations",
		PersistentPreRunE: setupKVClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common client flags to the KV command
	util.SetupClientFlags(KeyValueCommands)

	// Add subcommands
	KeyValueCommands.AddCommand(pingCmd)
	KeyValueCommands.AddCommand(echoCmd)
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(existsCmd)
	KeyValueCommands.AddCommand(typeCmd)
	KeyValueCommands.AddCommand(keysCmd)
	KeyValueCommands.AddCommand(lpushCmd)
	KeyValueCommands.AddCommand(rpushCmd)
	KeyValueCommands.AddCommand(lpopCmd)
	KeyValueCommands.AddCommand(rpopCmd)
	KeyValueCommands.AddCommand(saddCmd)
	KeyValueCommands.AddCommand(sremCmd)
	KeyValueCommands.AddCommand(smembersCmd)
	KeyValueCommands.AddCommand(dbsizeCmd)
	KeyValueCommands.AddCommand(flushallCmd)
	KeyValueCommands.AddCommand(saveCmd)
	KeyValueCommands.AddCommand(infoCmd)
	KeyValueCommands.AddCommand(benchCmd)
}

// setupKVClient connects the client to the configured server
func setupKVClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Get client configuration components
	config := util.GetClientConfig()

	// Get the connector
	connector, err := util.GetConnector()
	if err != nil {
		return err
	}

	// Create the KV client
	kvClient, err = client.NewClient(*config, connector)

	return err
}
