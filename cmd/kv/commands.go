package kv

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	pingCmd = &cobra.Command{
		Use:   "ping",
		Short: "Checks the connection to the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := kvClient.Ping(); err != nil {
				return err
			}
			color.Green("PONG")
			return nil
		},
	}
	echoCmd = &cobra.Command{
		Use:   "echo [message]",
		Short: "Sends a message to the server and prints the reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := kvClient.Echo([]byte(args[0]))
			if err != nil {
				return err
			}
			fmt.Println(string(reply))
			return nil
		},
	}
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the string value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := kvClient.Set(args[0], []byte(args[1])); err != nil {
				return err
			}
			color.Green("OK")
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the string value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, found, err := kvClient.Get(args[0])
			if err != nil {
				return err
			}
			if !found {
				color.Yellow("(nil)")
				return nil
			}
			fmt.Println(string(value))
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]...",
		Short: "Deletes one or more keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := kvClient.Del(args...)
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}
	existsCmd = &cobra.Command{
		Use:   "exists [key]...",
		Short: "Counts how many of the given keys exist",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := kvClient.Exists(args...)
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}
	typeCmd = &cobra.Command{
		Use:   "type [key]",
		Short: "Prints the kind of value stored at a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := kvClient.Type(args[0])
			if err != nil {
				return err
			}
			fmt.Println(kind)
			return nil
		},
	}
	keysCmd = &cobra.Command{
		Use:   "keys [pattern]",
		Short: "Lists all keys matching a glob pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := kvClient.Keys(args[0])
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				color.Yellow("(empty)")
				return nil
			}
			for _, key := range keys {
				fmt.Println(key)
			}
			return nil
		},
	}
	lpushCmd = &cobra.Command{
		Use:   "lpush [key] [value]...",
		Short: "Prepends values to a list",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := kvClient.LPush(args[0], valueArgs(args[1:])...)
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}
	rpushCmd = &cobra.Command{
		Use:   "rpush [key] [value]...",
		Short: "Appends values to a list",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := kvClient.RPush(args[0], valueArgs(args[1:])...)
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}
	lpopCmd = &cobra.Command{
		Use:   "lpop [key]",
		Short: "Removes and prints the first element of a list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, found, err := kvClient.LPop(args[0])
			if err != nil {
				return err
			}
			if !found {
				color.Yellow("(nil)")
				return nil
			}
			fmt.Println(string(value))
			return nil
		},
	}
	rpopCmd = &cobra.Command{
		Use:   "rpop [key]",
		Short: "Removes and prints the last element of a list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, found, err := kvClient.RPop(args[0])
			if err != nil {
				return err
			}
			if !found {
				color.Yellow("(nil)")
				return nil
			}
			fmt.Println(string(value))
			return nil
		},
	}
	saddCmd = &cobra.Command{
		Use:   "sadd [key] [member]...",
		Short: "Adds members to a set",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := kvClient.SAdd(args[0], valueArgs(args[1:])...)
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}
	sremCmd = &cobra.Command{
		Use:   "srem [key] [member]...",
		Short: "Removes members from a set",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := kvClient.SRem(args[0], valueArgs(args[1:])...)
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}
	smembersCmd = &cobra.Command{
		Use:   "smembers [key]",
		Short: "Lists all members of a set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			members, err := kvClient.SMembers(args[0])
			if err != nil {
				return err
			}
			if len(members) == 0 {
				color.Yellow("(empty)")
				return nil
			}
			for _, member := range members {
				fmt.Println(string(member))
			}
			return nil
		},
	}
	dbsizeCmd = &cobra.Command{
		Use:   "dbsize",
		Short: "Prints the number of keys in the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := kvClient.DBSize()
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}
	flushallCmd = &cobra.Command{
		Use:   "flushall",
		Short: "Removes all keys from the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := kvClient.FlushAll(); err != nil {
				return err
			}
			color.Green("OK")
			return nil
		},
	}
	saveCmd = &cobra.Command{
		Use:   "save",
		Short: "Writes a snapshot on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := kvClient.Save(); err != nil {
				return err
			}
			color.Green("OK")
			return nil
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info [section]",
		Short: "Prints server statistics, optionally for a single section",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			section := ""
			if len(args) == 1 {
				section = args[0]
			}
			info, err := kvClient.Info(section)
			if err != nil {
				return err
			}
			fmt.Print(info)
			return nil
		},
	}
)

// valueArgs converts command line arguments to value byte slices
func valueArgs(args []string) [][]byte {
	values := make([][]byte, len(args))
	for i, arg := range args {
		values[i] = []byte(arg)
	}
	return values
}
