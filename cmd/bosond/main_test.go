package main

import "testing"

func TestResolveBootstrapAddrs(t *testing.T) {
	addrs, err := resolveBootstrapAddrs([]string{"127.0.0.1:39001", "10.0.0.5:4222"})
	if err != nil {
		t.Fatalf("resolveBootstrapAddrs: %v", err)
	}
	if len(addrs) != 2 {
		t.Fatalf("expected 2 addrs, got %d", len(addrs))
	}
	if addrs[0].Port != 39001 || addrs[1].Port != 4222 {
		t.Fatalf("unexpected ports: %v", addrs)
	}
}

func TestResolveBootstrapAddrsEmpty(t *testing.T) {
	addrs, err := resolveBootstrapAddrs(nil)
	if err != nil {
		t.Fatalf("resolveBootstrapAddrs: %v", err)
	}
	if len(addrs) != 0 {
		t.Fatalf("expected no addrs, got %d", len(addrs))
	}
}

func TestResolveBootstrapAddrsRejectsGarbage(t *testing.T) {
	if _, err := resolveBootstrapAddrs([]string{"not-an-address"}); err == nil {
		t.Fatal("expected error resolving malformed bootstrap address")
	}
}
