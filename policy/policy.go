// Package policy enforces the network allow-list over classified trace
// events. Enforcement is post-hoc: violations are recorded against the
// captured trace, not blocked live.
package policy

import (
	"context"
	"fmt"
	"log"
	"net"

	"github.com/homegamesio/homedome/trace"
)

// AllowList is the set of IP addresses a sandboxed run may contact. It is
// scoped to a single run: callers resolve a fresh one every time and never
// cache it across runs.
type AllowList struct {
	host string
	ips  map[string]bool
}

// Resolve builds an allow-list from a live DNS lookup of the trusted host.
func Resolve(ctx context.Context, host string) (*AllowList, error) {
	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve allow-list host %s: %w", host, err)
	}
	return NewAllowList(host, addrs), nil
}

func NewAllowList(host string, ips []string) *AllowList {
	set := make(map[string]bool, len(ips))
	for _, ip := range ips {
		set[ip] = true
	}
	return &AllowList{host: host, ips: set}
}

func (a *AllowList) Contains(ip string) bool {
	return a.ips[ip]
}

func (a *AllowList) IPs() []string {
	out := make([]string, 0, len(a.ips))
	for ip := range a.ips {
		out = append(out, ip)
	}
	return out
}

// Violation is one connect to an address outside the allow-list.
type Violation struct {
	Addr string
	Raw  string
}

func (v Violation) Error() string {
	return "made network request to unknown IP: " + v.Addr
}

// Monitor consumes classified events and records every connect whose
// extracted address is absent from the allow-list. A connect line with no
// extractable address is an anomaly, not a violation: insufficient evidence
// to accuse, but worth surfacing.
type Monitor struct {
	allow      *AllowList
	violations []Violation
	anomalies  int
}

func NewMonitor(allow *AllowList) *Monitor {
	return &Monitor{allow: allow}
}

func (m *Monitor) Observe(ev trace.Event) {
	if ev.Category != trace.CategoryConnect {
		return
	}
	if ev.Addr == "" {
		m.anomalies++
		log.Printf("policy: connect line with no extractable address: %.200s", ev.Raw)
		return
	}
	if !m.allow.Contains(ev.Addr) {
		m.violations = append(m.violations, Violation{Addr: ev.Addr, Raw: ev.Raw})
		log.Printf("policy: violation: connect to %s outside allow-list for %s", ev.Addr, m.allow.host)
	}
}

// Failed reports whether any violation was recorded.
func (m *Monitor) Failed() bool {
	return len(m.violations) > 0
}

func (m *Monitor) Violations() []Violation {
	return m.violations
}

func (m *Monitor) Anomalies() int {
	return m.anomalies
}
