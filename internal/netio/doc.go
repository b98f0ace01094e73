// Package netio provides raw AF_PACKET socket I/O for load-balanced
// interfaces, implementing the lb4.NIC contract against a real Linux
// network interface.
package netio
