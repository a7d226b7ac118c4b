package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homegamesio/homedome/trace"
)

func monitorOver(t *testing.T, allowed []string, traceText string) *Monitor {
	t.Helper()
	m := NewMonitor(NewAllowList("landlord.homegames.io", allowed))
	for _, ev := range trace.Parse(traceText) {
		m.Observe(ev)
	}
	return m
}

func TestAllowedConnect(t *testing.T) {
	m := monitorOver(t, []string{"93.184.216.34"},
		`connect(3, {sa_family=AF_INET, sin_port=htons(443), sin_addr=inet_addr("93.184.216.34")}, 16) = 0`)
	assert.False(t, m.Failed())
	assert.Empty(t, m.Violations())
}

func TestDisallowedConnect(t *testing.T) {
	m := monitorOver(t, []string{"93.184.216.34"},
		`connect(3, {sa_family=AF_INET, sin_port=htons(80), sin_addr=inet_addr("10.0.0.9")}, 16) = 0`)
	assert.True(t, m.Failed())
	require.Len(t, m.Violations(), 1)
	assert.Equal(t, "10.0.0.9", m.Violations()[0].Addr)
}

func TestEveryViolationRecorded(t *testing.T) {
	traceText := `connect(3, {sin_addr=inet_addr("10.0.0.9")}, 16) = 0
connect(3, {sin_addr=inet_addr("93.184.216.34")}, 16) = 0
connect(4, {sin_addr=inet_addr("172.16.0.5")}, 16) = 0
connect(4, {sin_addr=inet_addr("10.0.0.9")}, 16) = 0`
	m := monitorOver(t, []string{"93.184.216.34"}, traceText)
	require.Len(t, m.Violations(), 3)
	assert.Equal(t, "10.0.0.9", m.Violations()[0].Addr)
	assert.Equal(t, "172.16.0.5", m.Violations()[1].Addr)
	assert.Equal(t, "10.0.0.9", m.Violations()[2].Addr)
}

// Multi-task traces carry pid-prefixed lines; a violation must not hide
// behind the prefix.
func TestDisallowedConnectFromChildTask(t *testing.T) {
	traceText := `[pid  4321] connect(11, {sa_family=AF_INET, sin_port=htons(80), sin_addr=inet_addr("10.0.0.9")}, 16) = 0
4321  connect(12, {sa_family=AF_INET, sin_addr=inet_addr("172.16.0.5")}, 16) = 0`
	m := monitorOver(t, []string{"93.184.216.34"}, traceText)
	assert.True(t, m.Failed())
	require.Len(t, m.Violations(), 2)
	assert.Equal(t, "10.0.0.9", m.Violations()[0].Addr)
	assert.Equal(t, "172.16.0.5", m.Violations()[1].Addr)
}

// No extractable address: anomaly, not violation.
func TestUnextractableConnectIsAnomaly(t *testing.T) {
	m := monitorOver(t, []string{"93.184.216.34"},
		`connect(11, {sa_family=AF_UNIX, sun_path="/run/x.sock"}, 110) = 0`)
	assert.False(t, m.Failed())
	assert.Equal(t, 1, m.Anomalies())
}

func TestNonConnectEventsIgnored(t *testing.T) {
	m := monitorOver(t, nil, `open("/etc/hosts", O_RDONLY) = 3
socket(AF_INET, SOCK_STREAM, IPPROTO_TCP) = 4
read(4, "x", 1) = 1`)
	assert.False(t, m.Failed())
	assert.Zero(t, m.Anomalies())
}

func TestViolationError(t *testing.T) {
	v := Violation{Addr: "10.0.0.9"}
	assert.Equal(t, "made network request to unknown IP: 10.0.0.9", v.Error())
}
