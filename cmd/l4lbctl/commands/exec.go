package commands

import (
	"fmt"
	"os"

	"github.com/ardenflow/l4lb/internal/admin"
)

// protocolFlag resolves the -t/-u pair into the protocol string the admin
// protocol expects, rejecting the case where both or neither were given.
func protocolFlag(tcp, udp bool) (string, error) {
	switch {
	case tcp && udp:
		return "", fmt.Errorf("specify only one of -t or -u")
	case udp:
		return "udp", nil
	case tcp:
		return "tcp", nil
	default:
		return "", fmt.Errorf("one of -t or -u is required")
	}
}

// runAdmin sends req to the daemon and exits the process with the
// response's exit code on failure, matching the transport/semantic halves
// of the CLI's exit-code contract (transport failure and daemon-reported
// semantic failure both surface as -1; a flag-parsing failure never
// reaches this function at all, since cobra rejects it before RunE runs).
// On success it returns the response for the caller to render.
func runAdmin(req admin.Request) admin.Response {
	resp, err := adminClient.Call(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(-1)
	}
	if resp.ExitCode != 0 {
		fmt.Fprintln(os.Stderr, "Error:", resp.Error)
		os.Exit(resp.ExitCode)
	}
	return resp
}
