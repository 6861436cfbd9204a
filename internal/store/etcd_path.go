package store

import (
	"fmt"
	"strings"
)

func hostsPrefix(prefix string) string {
	return strings.TrimRight(prefix, "/") + "/hosts/"
}

func hostKey(prefix string, id int) string {
	return fmt.Sprintf("%s%d", hostsPrefix(prefix), id)
}

// hostSeqKey holds the last host id handed out.
func hostSeqKey(prefix string) string {
	return strings.TrimRight(prefix, "/") + "/meta/host_seq"
}

func containersPrefix(prefix string, hostID int) string {
	return fmt.Sprintf("%s/containers/%d/", strings.TrimRight(prefix, "/"), hostID)
}

func containerKey(prefix string, hostID int, name string) string {
	return containersPrefix(prefix, hostID) + name
}
