package server

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// renderInfo renders the INFO reply in the usual section format. An empty
// section selects everything, otherwise only the named section is included.
// Lines are CRLF-terminated like the rest of the protocol.
func (d *Dispatcher) renderInfo(section string) string {
	var sb strings.Builder

	addSection := func(name string) bool {
		if section != "" && section != strings.ToLower(name) {
			return false
		}
		if sb.Len() > 0 {
			sb.WriteString("\r\n")
		}
		fmt.Fprintf(&sb, "# %s\r\n", name)
		return true
	}

	addField := func(name string, value interface{}) {
		fmt.Fprintf(&sb, "%s:%v\r\n", name, value)
	}

	if addSection("Server") {
		addField("rkv_version", Version)
		addField("process_id", os.Getpid())
		addField("uptime_in_seconds", int(time.Since(d.startTime).Seconds()))
	}

	if addSection("Clients") {
		clients := 0
		if d.clients != nil {
			clients = d.clients()
		}
		addField("connected_clients", clients)
	}

	// Memory and Keyspace both derive from the engine's own statistics
	dbInfo, infoErr := d.store.GetInfo()

	if addSection("Memory") {
		if infoErr == nil {
			addField("used_memory_estimate", dbInfo.SizeBytes)
		} else {
			addField("used_memory_estimate", "unknown")
		}
	}

	if addSection("Stats") {
		addField("total_connections_received", d.metrics.connectionsTotal.Get())
		addField("total_commands_processed", d.metrics.commandsTotal.Get())
		addField("total_error_replies", d.metrics.errorsTotal.Get())
		addField("keyspace_hits", d.metrics.keyspaceHits.Get())
		addField("keyspace_misses", d.metrics.keyspaceMisses.Get())
	}

	if addSection("Replication") {
		role := "leader"
		if d.readOnly {
			role = "replica"
		}
		addField("role", role)
		addField("connected_followers", d.log.Followers())
		addField("last_seq", d.log.LastSeq())
		addField("backlog_first_seq", d.log.FirstSeq())
	}

	if addSection("Keyspace") {
		if infoErr == nil {
			addField("db0", fmt.Sprintf("keys=%d", dbInfo.Keys))
		} else {
			addField("db0", "keys=unknown")
		}
	}

	return sb.String()
}
