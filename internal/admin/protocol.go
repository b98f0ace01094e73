// Package admin implements the load balancer's administrative control
// protocol: JSON request/response pairs exchanged over a Unix domain
// socket, one request per connection. It is the concrete stand-in for
// the CLI's external administrative collaborator (§6 Administrative CLI)
// — l4lbd listens, l4lbctl dials.
package admin

// Op names the administrative operation a Request carries, mirroring the
// CLI grammar's verb/noun pairs (§6): "service add", "server delete", etc.
type Op string

const (
	OpServiceAdd    Op = "service_add"
	OpServiceDelete Op = "service_delete"
	OpServiceList   Op = "service_list"
	OpServerAdd     Op = "server_add"
	OpServerDelete  Op = "server_delete"
	OpServerList    Op = "server_list"
)

// Request is the JSON envelope sent by a client for one command.
type Request struct {
	Op Op `json:"op"`

	// Public/Address are "A.B.C.D:PORT" strings (§6 grammar).
	Public   string `json:"public,omitempty"`
	Address  string `json:"address,omitempty"`
	Protocol string `json:"protocol,omitempty"` // "tcp" or "udp" (-t / -u)
	NIC      string `json:"nic,omitempty"`

	// Discipline is the schedule code for "service add -s" (rr, w, r, l, h).
	Discipline string `json:"discipline,omitempty"`
	// PrivateNICs lists "-out ADDR NI" private-side interfaces for a service.
	PrivateNICs []string `json:"private_nics,omitempty"`

	// Mode is the forwarding mode for "server add -m" (nat, dnat, dr).
	Mode string `json:"mode,omitempty"`
	// Weight is the scheduling weight for "server add".
	Weight int `json:"weight,omitempty"`

	// Force is "-f" on a delete command.
	Force bool `json:"force,omitempty"`
	// WaitMicros is "-w MICROSECONDS" on "server delete".
	WaitMicros int64 `json:"wait_micros,omitempty"`
}

// Response is the JSON envelope returned for one command.
//
// ExitCode follows §6's contract for the CLI layer to surface directly:
// 0 on success, a positive argv index on parse error (produced by the CLI
// itself, never by this server), -1 on semantic failure (duplicate
// endpoint, unknown mode, no such service, etc).
type Response struct {
	ExitCode int    `json:"exit_code"`
	Error    string `json:"error,omitempty"`

	Services []ServiceView `json:"services,omitempty"`
	Servers  []ServerView  `json:"servers,omitempty"`
}

// ServiceView is the wire projection of lb4.ServiceSnapshot for "service list".
type ServiceView struct {
	Public     string   `json:"public"`
	Discipline string   `json:"discipline"`
	State      string   `json:"state"`
	Active     []string `json:"active"`
	Inactive   []string `json:"inactive"`
}

// ServerView is the wire projection of lb4.ServerSnapshot for "server list".
type ServerView struct {
	Endpoint string `json:"endpoint"`
	Weight   int    `json:"weight"`
	State    string `json:"state"`
	Mode     string `json:"mode"`
	Sessions int    `json:"sessions"`
}
