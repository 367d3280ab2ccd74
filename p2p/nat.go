package p2p

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/huin/goupnp/dcps/internetgateway1"
	natpmp "github.com/jackpal/go-nat-pmp"

	"github.com/cauchynet/cauchy/log"
)

var natLogger = log.NewModuleLogger(log.ModuleDaemon)

// NAT maps a local listen port to an externally reachable one through
// whatever gateway mechanism the LAN offers, mirroring the UPnP/NAT-PMP
// port-mapping step the wider daemon stack performs before advertising its
// listen address to peers.
type NAT interface {
	AddMapping(protocol string, extport, intport int, name string, lifetime time.Duration) error
	DeleteMapping(protocol string, extport, intport int) error
	ExternalIP() (net.IP, error)
	String() string
}

const (
	mapTimeout        = 20 * time.Minute
	mapRefreshInterval = 15 * time.Minute
)

// MapPort asks n to forward extport/intport and keeps the mapping alive by
// refreshing it periodically until stop is closed. It is meant to run in
// its own goroutine; a failed initial mapping is logged and not retried
// until the next refresh tick.
func MapPort(n NAT, stop <-chan struct{}, protocol string, extport, intport int, name string) {
	l := natLogger.With("protocol", protocol, "extport", extport, "intport", intport, "nat", n.String())
	refresh := time.NewTimer(mapRefreshInterval)
	defer func() {
		refresh.Stop()
		n.DeleteMapping(protocol, extport, intport)
	}()

	if err := n.AddMapping(protocol, extport, intport, name, mapTimeout); err != nil {
		l.Warn("port mapping failed", "error", err)
	} else {
		l.Info("mapped network port")
	}

	for {
		select {
		case <-stop:
			return
		case <-refresh.C:
			if err := n.AddMapping(protocol, extport, intport, name, mapTimeout); err != nil {
				l.Warn("port mapping refresh failed", "error", err)
			}
			refresh.Reset(mapRefreshInterval)
		}
	}
}

// Discover tries NAT-PMP and UPnP concurrently and returns whichever
// responds first, or nil if neither router supports either mechanism.
func Discover() NAT {
	found := make(chan NAT, 2)
	go func() { found <- discoverPMP() }()
	go func() { found <- discoverUPnP() }()
	for i := 0; i < cap(found); i++ {
		if n := <-found; n != nil {
			return n
		}
	}
	return nil
}

type pmp struct {
	gw net.IP
	c  *natpmp.Client
}

func discoverPMP() NAT {
	gw, err := defaultGateway()
	if err != nil {
		return nil
	}
	client := natpmp.NewClient(gw)
	if _, err := client.GetExternalAddress(); err != nil {
		return nil
	}
	return &pmp{gw: gw, c: client}
}

func (n *pmp) ExternalIP() (net.IP, error) {
	reply, err := n.c.GetExternalAddress()
	if err != nil {
		return nil, err
	}
	ip := reply.ExternalIPAddress
	return net.IPv4(ip[0], ip[1], ip[2], ip[3]), nil
}

func (n *pmp) AddMapping(protocol string, extport, intport int, name string, lifetime time.Duration) error {
	if protocol == "UDP" {
		_, err := n.c.AddPortMapping("udp", intport, extport, int(lifetime/time.Second))
		return err
	}
	_, err := n.c.AddPortMapping("tcp", intport, extport, int(lifetime/time.Second))
	return err
}

func (n *pmp) DeleteMapping(protocol string, extport, intport int) error {
	if protocol == "UDP" {
		_, err := n.c.AddPortMapping("udp", intport, 0, 0)
		return err
	}
	_, err := n.c.AddPortMapping("tcp", intport, 0, 0)
	return err
}

func (n *pmp) String() string { return fmt.Sprintf("NAT-PMP(%v)", n.gw) }

// defaultGateway guesses the LAN gateway as the first three octets of a
// non-loopback local IPv4 address with .1 as the last octet -- a common
// convention for home routers, avoiding a dependency on OS-specific
// routing-table introspection.
func defaultGateway() (net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		ip4 := ipnet.IP.To4()
		if ip4 == nil {
			continue
		}
		return net.IPv4(ip4[0], ip4[1], ip4[2], 1), nil
	}
	return nil, errors.New("p2p: no local IPv4 address found")
}

type upnp struct {
	dev    string
	client wanIPConnection
}

type wanIPConnection interface {
	GetExternalIPAddress() (string, error)
	AddPortMapping(remoteHost string, externalPort uint16, protocol string, internalPort uint16, internalClient string, enabled bool, desc string, lease uint32) error
	DeletePortMapping(remoteHost string, externalPort uint16, protocol string) error
}

func discoverUPnP() NAT {
	clients, _, err := internetgateway1.NewWANIPConnection1Clients()
	if err != nil || len(clients) == 0 {
		return nil
	}
	return &upnp{dev: "WANIPConnection1", client: clients[0]}
}

func (n *upnp) ExternalIP() (net.IP, error) {
	s, err := n.client.GetExternalIPAddress()
	if err != nil {
		return nil, err
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, errors.New("p2p: upnp returned an invalid IP")
	}
	return ip, nil
}

func (n *upnp) AddMapping(protocol string, extport, intport int, name string, lifetime time.Duration) error {
	ip, err := localIPv4()
	if err != nil {
		return err
	}
	n.client.DeletePortMapping("", uint16(extport), protocol)
	return n.client.AddPortMapping("", uint16(extport), protocol, uint16(intport), ip.String(), true, name, uint32(lifetime/time.Second))
}

func (n *upnp) DeleteMapping(protocol string, extport, intport int) error {
	return n.client.DeletePortMapping("", uint16(extport), protocol)
}

func (n *upnp) String() string { return fmt.Sprintf("UPnP(%s)", n.dev) }

func localIPv4() (net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			return ip4, nil
		}
	}
	return nil, errors.New("p2p: no local IPv4 address found")
}
