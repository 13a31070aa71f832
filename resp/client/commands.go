package client

import (
	"fmt"

	"github.com/ValentinKolb/rKV/resp/proto"
)

// buildCommand assembles a command from a verb and raw byte arguments.
func buildCommand(verb string, args ...[]byte) proto.Command {
	cmd := make(proto.Command, 0, len(args)+1)
	cmd = append(cmd, []byte(verb))
	cmd = append(cmd, args...)
	return cmd
}

// keyArgs converts string keys into command arguments.
func keyArgs(keys []string) [][]byte {
	args := make([][]byte, len(keys))
	for i, key := range keys {
		args[i] = []byte(key)
	}
	return args
}

// invoke sends a command and converts server-side error replies into Go
// errors, so typed wrappers only see successful replies.
func (c *Client) invoke(cmd proto.Command) (proto.Reply, error) {
	reply, err := c.roundTrip(cmd)
	if err != nil {
		return proto.Reply{}, err
	}
	if err := reply.AsError(); err != nil {
		return proto.Reply{}, err
	}
	return reply, nil
}

// invokeInteger sends a command expecting an integer reply.
func (c *Client) invokeInteger(cmd proto.Command) (int, error) {
	reply, err := c.invoke(cmd)
	if err != nil {
		return 0, err
	}
	if reply.Type != proto.ReplyInteger {
		return 0, fmt.Errorf("unexpected %s reply for '%s'", reply.Type, cmd.Verb())
	}
	return int(reply.Int), nil
}

// invokeOK sends a command expecting the "OK" status reply.
func (c *Client) invokeOK(cmd proto.Command) error {
	reply, err := c.invoke(cmd)
	if err != nil {
		return err
	}
	if reply.Type != proto.ReplySimple || reply.Str != "OK" {
		return fmt.Errorf("unexpected %s reply for '%s'", reply.Type, cmd.Verb())
	}
	return nil
}

// invokeBulk sends a command expecting a bulk reply. The null bulk string
// maps to found=false.
func (c *Client) invokeBulk(cmd proto.Command) (value []byte, found bool, err error) {
	reply, err := c.invoke(cmd)
	if err != nil {
		return nil, false, err
	}
	if reply.Type != proto.ReplyBulk {
		return nil, false, fmt.Errorf("unexpected %s reply for '%s'", reply.Type, cmd.Verb())
	}
	if reply.IsNull() {
		return nil, false, nil
	}
	return reply.Bulk, true, nil
}

// invokeBulkArray sends a command expecting an array of bulk strings.
func (c *Client) invokeBulkArray(cmd proto.Command) ([][]byte, error) {
	reply, err := c.invoke(cmd)
	if err != nil {
		return nil, err
	}
	if reply.Type != proto.ReplyArray {
		return nil, fmt.Errorf("unexpected %s reply for '%s'", reply.Type, cmd.Verb())
	}
	values := make([][]byte, len(reply.Elems))
	for i, elem := range reply.Elems {
		values[i] = elem.Bulk
	}
	return values, nil
}

// --------------------------------------------------------------------------
// Connection Commands
// --------------------------------------------------------------------------

// Ping checks the connection to the server.
func (c *Client) Ping() error {
	reply, err := c.invoke(buildCommand("PING"))
	if err != nil {
		return err
	}
	if reply.Type != proto.ReplySimple || reply.Str != "PONG" {
		return fmt.Errorf("unexpected %s reply for 'PING'", reply.Type)
	}
	return nil
}

// Echo returns the given message unchanged.
func (c *Client) Echo(message []byte) ([]byte, error) {
	value, _, err := c.invokeBulk(buildCommand("ECHO", message))
	return value, err
}

// --------------------------------------------------------------------------
// String Commands
// --------------------------------------------------------------------------

// Set stores value under key, replacing any existing value.
func (c *Client) Set(key string, value []byte) error {
	return c.invokeOK(buildCommand("SET", []byte(key), value))
}

// Get returns the string value stored under key.
// The boolean indicates whether the key was found.
func (c *Client) Get(key string) (value []byte, found bool, err error) {
	return c.invokeBulk(buildCommand("GET", []byte(key)))
}

// --------------------------------------------------------------------------
// Generic Key Commands
// --------------------------------------------------------------------------

// Del removes the given keys and returns how many existed.
func (c *Client) Del(keys ...string) (int, error) {
	return c.invokeInteger(buildCommand("DEL", keyArgs(keys)...))
}

// Exists returns how many of the given keys exist.
func (c *Client) Exists(keys ...string) (int, error) {
	return c.invokeInteger(buildCommand("EXISTS", keyArgs(keys)...))
}

// Type returns the kind of the value under key ("string", "list", "set"),
// or "none" if the key does not exist.
func (c *Client) Type(key string) (string, error) {
	reply, err := c.invoke(buildCommand("TYPE", []byte(key)))
	if err != nil {
		return "", err
	}
	if reply.Type != proto.ReplySimple {
		return "", fmt.Errorf("unexpected %s reply for 'TYPE'", reply.Type)
	}
	return reply.Str, nil
}

// Keys returns all keys matching the glob pattern.
func (c *Client) Keys(pattern string) ([]string, error) {
	values, err := c.invokeBulkArray(buildCommand("KEYS", []byte(pattern)))
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(values))
	for i, value := range values {
		keys[i] = string(value)
	}
	return keys, nil
}

// --------------------------------------------------------------------------
// List Commands
// --------------------------------------------------------------------------

// LPush prepends values to the list under key and returns the new length.
func (c *Client) LPush(key string, values ...[]byte) (int, error) {
	return c.invokeInteger(buildCommand("LPUSH", append([][]byte{[]byte(key)}, values...)...))
}

// RPush appends values to the list under key and returns the new length.
func (c *Client) RPush(key string, values ...[]byte) (int, error) {
	return c.invokeInteger(buildCommand("RPUSH", append([][]byte{[]byte(key)}, values...)...))
}

// LPop removes and returns the leftmost list element.
// The boolean indicates whether an element was popped.
func (c *Client) LPop(key string) (value []byte, found bool, err error) {
	return c.invokeBulk(buildCommand("LPOP", []byte(key)))
}

// RPop removes and returns the rightmost list element.
// The boolean indicates whether an element was popped.
func (c *Client) RPop(key string) (value []byte, found bool, err error) {
	return c.invokeBulk(buildCommand("RPOP", []byte(key)))
}

// --------------------------------------------------------------------------
// Set Commands
// --------------------------------------------------------------------------

// SAdd adds members to the set under key and returns how many were new.
func (c *Client) SAdd(key string, members ...[]byte) (int, error) {
	return c.invokeInteger(buildCommand("SADD", append([][]byte{[]byte(key)}, members...)...))
}

// SRem removes members from the set under key and returns how many were
// removed.
func (c *Client) SRem(key string, members ...[]byte) (int, error) {
	return c.invokeInteger(buildCommand("SREM", append([][]byte{[]byte(key)}, members...)...))
}

// SMembers returns all members of the set under key.
func (c *Client) SMembers(key string) ([][]byte, error) {
	return c.invokeBulkArray(buildCommand("SMEMBERS", []byte(key)))
}

// --------------------------------------------------------------------------
// Database Commands
// --------------------------------------------------------------------------

// DBSize returns the number of keys in the database.
func (c *Client) DBSize() (int, error) {
	return c.invokeInteger(buildCommand("DBSIZE"))
}

// FlushAll removes every key from the database.
func (c *Client) FlushAll() error {
	return c.invokeOK(buildCommand("FLUSHALL"))
}

// Save asks the server to write a snapshot to disk.
func (c *Client) Save() error {
	return c.invokeOK(buildCommand("SAVE"))
}

// Info returns the server's status report, optionally restricted to one
// section.
func (c *Client) Info(section string) (string, error) {
	cmd := buildCommand("INFO")
	if section != "" {
		cmd = append(cmd, []byte(section))
	}
	value, _, err := c.invokeBulk(cmd)
	return string(value), err
}
