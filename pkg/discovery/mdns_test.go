package discovery

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/enbility/zeroconf/v3"
)

func TestMergeAddresses(t *testing.T) {
	got := mergeAddresses(
		[]string{"192.168.1.10", "fe80::1"},
		[]string{"192.168.1.10", "10.0.0.5"},
	)

	want := []string{"192.168.1.10", "fe80::1", "10.0.0.5"}
	if len(got) != len(want) {
		t.Fatalf("mergeAddresses() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("mergeAddresses()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRemoveAddresses(t *testing.T) {
	entry := &zeroconf.ServiceEntry{
		AddrIPv4: []net.IP{net.ParseIP("192.168.1.10")},
	}

	got := removeAddresses([]string{"192.168.1.10", "10.0.0.5"}, entry)
	if len(got) != 1 || got[0] != "10.0.0.5" {
		t.Errorf("removeAddresses() = %v, want [10.0.0.5]", got)
	}
}

func TestServiceEntryToServerService(t *testing.T) {
	fpHex := strings.Repeat("ab", 32)

	entry := &ServiceEntry{
		Instance: "office",
		Service:  ServiceType,
		Domain:   Domain,
		Host:     "office.local.",
		Port:     24800,
		Text:     []string{"v=1.8", "sl=2", "fp=" + fpHex},
		Addrs:    []string{"192.168.1.10", "fe80::1"},
	}

	svc, err := entry.ToServerService()
	if err != nil {
		t.Fatalf("ToServerService() error = %v", err)
	}
	if svc.InstanceName != "office" {
		t.Errorf("InstanceName = %q, want \"office\"", svc.InstanceName)
	}
	if svc.Host != "office.local." {
		t.Errorf("Host = %q, want \"office.local.\"", svc.Host)
	}
	if svc.Port != 24800 {
		t.Errorf("Port = %d, want 24800", svc.Port)
	}
	if svc.Version != "1.8" {
		t.Errorf("Version = %q, want \"1.8\"", svc.Version)
	}
	if svc.Fingerprint.Hex() != fpHex {
		t.Errorf("Fingerprint = %q, want %q", svc.Fingerprint.Hex(), fpHex)
	}
	if len(svc.Addresses) != 2 || svc.Addresses[0] != "192.168.1.10" {
		t.Errorf("Addresses = %v, want IPv4 first", svc.Addresses)
	}
	if svc.Addr() != "192.168.1.10:24800" {
		t.Errorf("Addr() = %q, want \"192.168.1.10:24800\"", svc.Addr())
	}
}

func TestServiceEntryToServerServiceMalformedTXT(t *testing.T) {
	entry := &ServiceEntry{
		Instance: "office",
		Port:     24800,
		Text:     []string{"sl=2"},
	}

	if _, err := entry.ToServerService(); !errors.Is(err, ErrMissingRequired) {
		t.Errorf("ToServerService() error = %v, want ErrMissingRequired", err)
	}
}

func TestBrowserStoppedRejectsBrowse(t *testing.T) {
	b, err := NewMDNSBrowser(DefaultBrowserConfig())
	if err != nil {
		t.Fatalf("NewMDNSBrowser() error = %v", err)
	}

	b.Stop()

	if _, err := b.Browse(context.Background()); !errors.Is(err, context.Canceled) {
		t.Errorf("Browse() after Stop error = %v, want context.Canceled", err)
	}
}

func TestFilterBrowseResults(t *testing.T) {
	in := make(chan *ServerService, 3)
	in <- &ServerService{InstanceName: "old", Version: "2.0"}
	in <- &ServerService{InstanceName: "office", Version: "1.8"}
	in <- &ServerService{InstanceName: "den", Version: "1.7"}
	close(in)

	out := FilterBrowseResults(in, FilterCompatible())

	var got []string
	for svc := range out {
		got = append(got, svc.InstanceName)
	}

	if len(got) != 2 || got[0] != "office" || got[1] != "den" {
		t.Errorf("filtered = %v, want [office den]", got)
	}
}
